package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool() *Tool {
	return &Tool{
		Name:        "echo",
		Description: "echoes the message arg",
		Schema:      Schema{Required: []string{"message"}},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return args["message"].(string), nil
		},
	}
}

func TestRegisterAndExecute(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool()))

	res, err := r.Execute(context.Background(), "call-1", "echo", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hi", res.Output)
	assert.Equal(t, "call-1", res.ToolCallID)
}

func TestExecuteUnknownToolReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute(context.Background(), "call-1", "missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestExecuteMissingRequiredArg(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool()))

	res, err := r.Execute(context.Background(), "call-1", "echo", map[string]any{})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.ErrorIs(t, err, ErrMissingRequiredArg)
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool()))
	err := r.Register(echoTool())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolAlreadyRegistered)
}

func TestExecuteSurfacesToolError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Tool{
		Name:   "fails",
		Schema: Schema{},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", errors.New("boom")
		},
	}))

	res, err := r.Execute(context.Background(), "call-1", "fails", nil)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)
}
