package convergence

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunwell/internal/domain"
	"sunwell/internal/gates"
	"sunwell/internal/llmclient"
	toolscore "sunwell/internal/tools/core"
	"sunwell/internal/tools"
)

func singleArtifactGraph(t *testing.T) *domain.ArtifactGraph {
	t.Helper()
	g := domain.NewArtifactGraph()
	require.NoError(t, g.Add(domain.ArtifactSpec{
		ID:          "a1",
		Description: "write the handler",
		Produces:    []string{"handler.go"},
	}))
	return g
}

func newRegistry(t *testing.T, workspace string) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	sandbox := tools.NewSandbox(workspace, tools.DefaultAllowedCommandPrefixes)
	require.NoError(t, toolscore.RegisterAll(reg, sandbox))
	return reg
}

type alwaysPassGate struct{}

func (alwaysPassGate) Name() string { return "always_pass" }
func (alwaysPassGate) Run(_ context.Context, _ string, _ []gates.Artifact) (gates.Result, error) {
	return gates.Result{Gate: "always_pass", Status: gates.StatusPass}, nil
}

type scriptedFailGate struct {
	messages []string
	calls    int
}

func (g *scriptedFailGate) Name() string { return "scripted" }
func (g *scriptedFailGate) Run(_ context.Context, _ string, artifacts []gates.Artifact) (gates.Result, error) {
	idx := g.calls
	if idx >= len(g.messages) {
		idx = len(g.messages) - 1
	}
	g.calls++
	msg := g.messages[idx]
	var path string
	if len(artifacts) > 0 {
		path = artifacts[0].Path
	}
	return gates.Result{
		Gate:   "scripted",
		Status: gates.StatusFail,
		Messages: []gates.Message{
			{Path: path, Message: msg, Severity: gates.SeverityError},
		},
	}, nil
}

const createFileResponse = `{"tool_calls": [{"name": "create_file", "arguments": {"path": "handler.go", "content": "package main"}}]}`

func TestRunCompletesWhenGatesPass(t *testing.T) {
	workspace := t.TempDir()
	fake := &llmclient.Fake{Responses: []string{createFileResponse}}
	reg := newRegistry(t, workspace)
	pipeline := gates.NewPipeline(alwaysPassGate{})
	loop := New(fake, reg, pipeline, nil, workspace, DefaultConfig())

	outcome := loop.Run(context.Background(), "run-1", "add a handler", "hash-1", singleArtifactGraph(t), "")
	require.Equal(t, StateComplete, outcome.State)
	assert.Equal(t, "package main", outcome.Artifacts["handler.go"])
}

func TestRunEscalatesAfterMaxIterations(t *testing.T) {
	workspace := t.TempDir()
	responses := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		responses = append(responses, createFileResponse)
	}
	fake := &llmclient.Fake{Responses: responses}
	reg := newRegistry(t, workspace)
	// A distinct message per call defeats fixed-point detection so the
	// loop actually runs out the iteration budget instead of escalating
	// early as non-progressing.
	messages := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		messages = append(messages, fmt.Sprintf("error variant %d", i))
	}
	pipeline := gates.NewPipeline(&scriptedFailGate{messages: messages})
	loop := New(fake, reg, pipeline, nil, workspace, Config{MaxIterations: 2})

	outcome := loop.Run(context.Background(), "run-2", "add a handler", "hash-2", singleArtifactGraph(t), "")
	require.Equal(t, StateEscalate, outcome.State)
	require.NotNil(t, outcome.Recovery)
	assert.Equal(t, "max_iterations", outcome.Recovery.FailureReason)
}

func TestRunEscalatesOnNonProgressing(t *testing.T) {
	workspace := t.TempDir()
	responses := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		responses = append(responses, createFileResponse)
	}
	fake := &llmclient.Fake{Responses: responses}
	reg := newRegistry(t, workspace)
	pipeline := gates.NewPipeline(&scriptedFailGate{messages: []string{"same error every time"}})
	loop := New(fake, reg, pipeline, nil, workspace, Config{MaxIterations: 5})

	outcome := loop.Run(context.Background(), "run-3", "add a handler", "hash-3", singleArtifactGraph(t), "")
	require.Equal(t, StateEscalate, outcome.State)
	require.NotNil(t, outcome.Recovery)
	assert.Equal(t, "non_progressing", outcome.Recovery.FailureReason)
}

func TestRunHonorsCancellation(t *testing.T) {
	workspace := t.TempDir()
	fake := &llmclient.Fake{Responses: []string{createFileResponse}}
	reg := newRegistry(t, workspace)
	pipeline := gates.NewPipeline(alwaysPassGate{})
	loop := New(fake, reg, pipeline, nil, workspace, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := loop.Run(ctx, "run-4", "add a handler", "hash-4", singleArtifactGraph(t), "")
	require.Equal(t, StateCancelled, outcome.State)
	require.NotNil(t, outcome.Recovery)
	assert.Equal(t, "cancelled", outcome.Recovery.FailureReason)
}
