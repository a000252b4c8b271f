// Package shell implements the run_command tool (spec.md §6). Adapted from
// the teacher's internal/tools/shell/execute.go, which shelled out via
// "sh -c" (and so inherited shell metacharacter risk); Sunwell instead
// tokenizes the command and execs the resolved binary directly, per the
// explicit recommendation in spec.md §9.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"sunwell/internal/logging"
	"sunwell/internal/tools"
)

const defaultTimeout = 60 * time.Second
const maxOutputBytes = 50000

// RunCommandTool returns the run_command tool, bound to sandbox's workspace
// root and allowlist.
func RunCommandTool(sandbox *tools.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "run_command",
		Description: "Execute an allowlisted command in the workspace",
		Category:    tools.CategoryCommand,
		Destructive: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeRunCommand(ctx, sandbox, args)
		},
		Schema: tools.Schema{
			Required: []string{"cmd"},
			Properties: map[string]tools.Property{
				"cmd":             {Type: "string", Description: "The command to execute"},
				"timeout_seconds": {Type: "integer", Description: "Timeout in seconds (default 60)", Default: 60},
			},
		},
	}
}

func executeRunCommand(ctx context.Context, sandbox *tools.Sandbox, args map[string]any) (string, error) {
	cmdStr, _ := args["cmd"].(string)
	tokens, err := sandbox.CheckCommandAllowed(cmdStr)
	if err != nil {
		return "", err
	}

	timeout := defaultTimeout
	if t, ok := args["timeout_seconds"].(int); ok && t > 0 {
		timeout = time.Duration(t) * time.Second
	}

	logging.Get(logging.CategoryTools).Debug("run_command: %v (timeout=%s)", tokens, timeout)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, tokens[0], tokens[1:]...)
	cmd.Dir = sandbox.WorkspaceRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n--- stderr ---\n"
		}
		output += stderr.String()
	}
	if len(output) > maxOutputBytes {
		output = output[:maxOutputBytes] + "\n...[truncated]"
	}

	if runErr != nil {
		if execCtx.Err() == context.DeadlineExceeded {
			return output, fmt.Errorf("run_command: timed out after %s", timeout)
		}
		return output, fmt.Errorf("run_command: %w", runErr)
	}
	return output, nil
}
