// Package usage tracks token consumption and estimated cost per run,
// grounded on the teacher's internal/usage tracker: JSON persistence under
// a dotfile directory, debounced auto-save, aggregation by several
// dimensions, and a context.Context carrier for ambient propagation. The
// breakdown dimensions here are Sunwell's own (run/model/operation)
// in place of the teacher's shard-oriented ones.
package usage

import "time"

// Counts holds input/output token sums and an estimated USD cost.
type Counts struct {
	Input  int64   `json:"input"`
	Output int64   `json:"output"`
	Total  int64   `json:"total"`
	Cost   float64 `json:"cost_est_usd,omitempty"`
}

// Add folds one LLM call's token counts into the running totals.
func (c *Counts) Add(input, output int, costPerMille float64) {
	c.Input += int64(input)
	c.Output += int64(output)
	c.Total += int64(input + output)
	c.Cost += float64(input+output) / 1000 * costPerMille
}

// Event is a single recorded LLM or embedding call.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	Model     string    `json:"model"`
	Operation string    `json:"operation"` // plan, refine, decompose, embed, gate
	Input     int       `json:"input_tokens"`
	Output    int       `json:"output_tokens"`
}

// Aggregate holds counters broken down by run, model, and operation.
type Aggregate struct {
	Total       Counts            `json:"total"`
	ByRun       map[string]Counts `json:"by_run"`
	ByModel     map[string]Counts `json:"by_model"`
	ByOperation map[string]Counts `json:"by_operation"`
}

func newAggregate() Aggregate {
	return Aggregate{
		ByRun:       make(map[string]Counts),
		ByModel:     make(map[string]Counts),
		ByOperation: make(map[string]Counts),
	}
}

// data is the root structure persisted to disk.
type data struct {
	Version   string    `json:"version"`
	Aggregate Aggregate `json:"aggregate"`
}
