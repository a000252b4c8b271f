package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunwell/internal/tools"
)

func TestRunCommandExecutesAllowlistedBinary(t *testing.T) {
	sb := tools.NewSandbox(t.TempDir(), []string{"go"})
	tool := RunCommandTool(sb)

	out, err := tool.Execute(context.Background(), map[string]any{"cmd": "go version"})
	require.NoError(t, err)
	assert.Contains(t, out, "go version")
}

func TestRunCommandRejectsDisallowedBinary(t *testing.T) {
	sb := tools.NewSandbox(t.TempDir(), []string{"go"})
	tool := RunCommandTool(sb)

	_, err := tool.Execute(context.Background(), map[string]any{"cmd": "cargo build"})
	require.Error(t, err)
}

func TestRunCommandRejectsShellMetacharacters(t *testing.T) {
	sb := tools.NewSandbox(t.TempDir(), []string{"go"})
	tool := RunCommandTool(sb)

	_, err := tool.Execute(context.Background(), map[string]any{"cmd": "go test && rm -rf /"})
	require.Error(t, err)
}

func TestRunCommandPropagatesNonZeroExit(t *testing.T) {
	sb := tools.NewSandbox(t.TempDir(), []string{"go"})
	tool := RunCommandTool(sb)

	_, err := tool.Execute(context.Background(), map[string]any{
		"cmd":             "go run nonexistent-does-not-matter.go",
		"timeout_seconds": 5,
	})
	require.Error(t, err)
}
