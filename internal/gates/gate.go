// Package gates implements the Validation Gates of spec.md §4.8: a
// pipeline of deterministic checks run over produced artifacts, composed
// with stop-on-first-fail semantics. Determinism on fixed inputs is
// required so the Convergence Loop's fixed-point detection (spec.md §4.9,
// §8 property 7) can compare gate-failure sets across iterations.
package gates

import "context"

// Severity classifies one gate message.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Message is one diagnostic produced by a gate.
type Message struct {
	Path     string
	Line     int
	Message  string
	Severity Severity
}

// Status is a gate's pass/fail verdict.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
)

// Result is one gate's outcome over a set of artifacts.
type Result struct {
	Gate     string
	Status   Status
	Messages []Message
}

// Failed reports whether r represents a failing gate run.
func (r Result) Failed() bool { return r.Status == StatusFail }

// Artifact is the minimal shape a gate needs to validate one produced file:
// its workspace-relative path and current content.
type Artifact struct {
	Path    string
	Content []byte
}

// Gate is a single validation check over a set of produced artifacts
// (spec.md §4.8).
type Gate interface {
	Name() string
	Run(ctx context.Context, workspace string, artifacts []Artifact) (Result, error)
}

// PipelineResult is the outcome of running a Pipeline: every gate that ran,
// in order, stopping at (and including) the first failure.
type PipelineResult struct {
	Results []Result
}

// Passed reports whether every gate that ran passed (i.e. none failed).
func (p PipelineResult) Passed() bool {
	for _, r := range p.Results {
		if r.Failed() {
			return false
		}
	}
	return true
}

// FailedGate returns the name of the first failing gate, or "" if all passed.
func (p PipelineResult) FailedGate() string {
	for _, r := range p.Results {
		if r.Failed() {
			return r.Gate
		}
	}
	return ""
}

// FailureSet returns a deterministic summary of failing messages across all
// gates that ran, keyed as "gate:path:line:message" — the shape the
// Convergence Loop hashes for fixed-point comparison (spec.md §4.9).
func (p PipelineResult) FailureSet() []string {
	var out []string
	for _, r := range p.Results {
		if !r.Failed() {
			continue
		}
		for _, m := range r.Messages {
			out = append(out, r.Gate+":"+m.Path+":"+itoa(m.Line)+":"+m.Message)
		}
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Pipeline composes an ordered list of gates, stopping at the first failure
// (spec.md §4.8: "composes with others into a pipeline"; §9 testable
// property: deterministic for fixed-point detection).
type Pipeline struct {
	gates []Gate
}

// NewPipeline returns a Pipeline running gates in order.
func NewPipeline(gates ...Gate) *Pipeline {
	return &Pipeline{gates: gates}
}

// Run executes each gate in order against workspace/artifacts, stopping
// after the first gate whose Result fails.
func (p *Pipeline) Run(ctx context.Context, workspace string, artifacts []Artifact) (PipelineResult, error) {
	var out PipelineResult
	for _, g := range p.gates {
		res, err := g.Run(ctx, workspace, artifacts)
		if err != nil {
			return out, err
		}
		out.Results = append(out.Results, res)
		if res.Failed() {
			break
		}
	}
	return out, nil
}
