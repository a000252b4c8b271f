package gates

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGate struct {
	name string
	res  Result
}

func (g scriptedGate) Name() string { return g.name }
func (g scriptedGate) Run(ctx context.Context, workspace string, artifacts []Artifact) (Result, error) {
	return g.res, nil
}

func TestPipelineStopsOnFirstFailure(t *testing.T) {
	a := scriptedGate{name: "a", res: Result{Gate: "a", Status: StatusPass}}
	b := scriptedGate{name: "b", res: Result{Gate: "b", Status: StatusFail, Messages: []Message{{Message: "bad"}}}}
	c := scriptedGate{name: "c", res: Result{Gate: "c", Status: StatusPass}}

	p := NewPipeline(a, b, c)
	out, err := p.Run(context.Background(), "", nil)
	require.NoError(t, err)

	assert.Len(t, out.Results, 2)
	assert.False(t, out.Passed())
	assert.Equal(t, "b", out.FailedGate())
}

func TestPipelineAllPass(t *testing.T) {
	a := scriptedGate{name: "a", res: Result{Gate: "a", Status: StatusPass}}
	b := scriptedGate{name: "b", res: Result{Gate: "b", Status: StatusPass}}

	p := NewPipeline(a, b)
	out, err := p.Run(context.Background(), "", nil)
	require.NoError(t, err)
	assert.True(t, out.Passed())
	assert.Equal(t, "", out.FailedGate())
}

func TestFailureSetIsDeterministic(t *testing.T) {
	b := scriptedGate{name: "b", res: Result{
		Gate:   "b",
		Status: StatusFail,
		Messages: []Message{
			{Path: "x.go", Line: 3, Message: "bad"},
			{Path: "y.go", Line: 1, Message: "worse"},
		},
	}}
	p := NewPipeline(b)

	first, err := p.Run(context.Background(), "", nil)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), "", nil)
	require.NoError(t, err)

	assert.Equal(t, first.FailureSet(), second.FailureSet())
	assert.Equal(t, []string{"b:x.go:3:bad", "b:y.go:1:worse"}, first.FailureSet())
}

func TestSyntaxGatePassesValidGo(t *testing.T) {
	g := NewSyntaxGate()
	artifacts := []Artifact{{Path: "main.go", Content: []byte("package main\n\nfunc main() {}\n")}}

	res, err := g.Run(context.Background(), t.TempDir(), artifacts)
	require.NoError(t, err)
	assert.Equal(t, StatusPass, res.Status)
}

func TestSyntaxGateFailsBrokenGo(t *testing.T) {
	g := NewSyntaxGate()
	artifacts := []Artifact{{Path: "main.go", Content: []byte("package main\n\nfunc main( {\n")}}

	res, err := g.Run(context.Background(), t.TempDir(), artifacts)
	require.NoError(t, err)
	assert.Equal(t, StatusFail, res.Status)
	assert.NotEmpty(t, res.Messages)
}

func TestSyntaxGateSkipsUnknownExtension(t *testing.T) {
	g := NewSyntaxGate()
	artifacts := []Artifact{{Path: "README.md", Content: []byte("# not code, not even balanced ((")}}

	res, err := g.Run(context.Background(), t.TempDir(), artifacts)
	require.NoError(t, err)
	assert.Equal(t, StatusPass, res.Status)
}

func TestCommandGatePassesOnZeroExit(t *testing.T) {
	g := NewCommandGate("go-version", "go version", 0)
	res, err := g.Run(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPass, res.Status)
}

func TestCommandGateFailsOnNonZeroExit(t *testing.T) {
	g := NewCommandGate("bad-flag", "go nonexistent-subcommand", 0)
	res, err := g.Run(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFail, res.Status)
}

func TestCommandGateRejectsShellMetacharacters(t *testing.T) {
	g := NewCommandGate("injected", "go test && rm -rf /", 0)
	res, err := g.Run(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusFail, res.Status)
}
