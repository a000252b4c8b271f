package gates

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"sunwell/internal/logging"
	"sunwell/internal/tools"
)

// DefaultCommandTimeout is the gate-level command timeout from spec.md §4.8.
const DefaultCommandTimeout = 60 * time.Second

// CommandGate runs a planner-specified validation command (ArtifactSpec's
// ValidationCommands) and fails the gate on non-zero exit. Commands are
// tokenized rather than shelled out, the same non-negotiable from spec.md
// §9 applied to tools.Sandbox.
type CommandGate struct {
	name    string
	command string
	timeout time.Duration
}

// NewCommandGate returns a CommandGate named name running command, with the
// default 60s timeout unless timeout is positive.
func NewCommandGate(name, command string, timeout time.Duration) *CommandGate {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &CommandGate{name: name, command: command, timeout: timeout}
}

func (g *CommandGate) Name() string { return g.name }

func (g *CommandGate) Run(ctx context.Context, workspace string, artifacts []Artifact) (Result, error) {
	res := Result{Gate: g.Name(), Status: StatusPass}

	tokens, err := tools.TokenizeCommand(g.command)
	if err != nil {
		res.Status = StatusFail
		res.Messages = append(res.Messages, Message{Message: err.Error(), Severity: SeverityError})
		return res, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, tokens[0], tokens[1:]...)
	cmd.Dir = workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	logging.Get(logging.CategoryGates).Debug("command gate %s: %s (err=%v)", g.name, g.command, runErr)

	if runErr != nil {
		res.Status = StatusFail
		output := strings.TrimSpace(stdout.String() + "\n" + stderr.String())
		res.Messages = append(res.Messages, Message{Message: output, Severity: SeverityError})
	}
	return res, nil
}
