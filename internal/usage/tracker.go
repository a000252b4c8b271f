package usage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sunwell/internal/logging"
	"sunwell/internal/sunerr"
)

type contextKey struct{}

// costPerMilleTokens is a rough blended estimate used only for the cost
// column in Stats; callers needing exact billing should read provider
// invoices instead.
const costPerMilleTokens = 0.002

// Tracker accumulates token usage for a run and periodically persists it.
type Tracker struct {
	mu       sync.Mutex
	data     data
	path     string
	dirty    bool
	saveTime time.Duration
}

// NewTracker loads (or initializes) a tracker backed by path.
func NewTracker(path string) (*Tracker, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, sunerr.Storage("create usage directory", err)
		}
	}
	t := &Tracker{
		path:     path,
		data:     data{Version: "1", Aggregate: newAggregate()},
		saveTime: 5 * time.Second,
	}
	if err := t.load(); err != nil {
		logging.Get(logging.CategoryEvents).Warn("usage tracker: starting fresh after load error: %v", err)
	}
	return t, nil
}

func (t *Tracker) load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, &t.data); err != nil {
		return err
	}
	if t.data.Aggregate.ByRun == nil {
		t.data.Aggregate.ByRun = make(map[string]Counts)
	}
	if t.data.Aggregate.ByModel == nil {
		t.data.Aggregate.ByModel = make(map[string]Counts)
	}
	if t.data.Aggregate.ByOperation == nil {
		t.data.Aggregate.ByOperation = make(map[string]Counts)
	}
	return nil
}

// Save persists the tracker's current state.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saveLocked()
}

func (t *Tracker) saveLocked() error {
	raw, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return sunerr.Storage("marshal usage data", err)
	}
	return os.WriteFile(t.path, raw, 0o644)
}

// Track records one LLM call's token counts against runID/model/operation,
// then debounces a save so high-frequency calls don't serialize to disk
// on every single call.
func (t *Tracker) Track(runID, model, operation string, input, output int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Aggregate.Total.Add(input, output, costPerMilleTokens)
	addTo(t.data.Aggregate.ByRun, runID, input, output)
	addTo(t.data.Aggregate.ByModel, model, input, output)
	addTo(t.data.Aggregate.ByOperation, operation, input, output)

	if !t.dirty {
		t.dirty = true
		time.AfterFunc(t.saveTime, func() {
			t.Save()
			t.mu.Lock()
			t.dirty = false
			t.mu.Unlock()
		})
	}
}

func addTo(m map[string]Counts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output, costPerMilleTokens)
	m[key] = entry
}

// Stats returns a deep copy of the current aggregate.
func (t *Tracker) Stats() Aggregate {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Aggregate{
		Total:       t.data.Aggregate.Total,
		ByRun:       cloneCounts(t.data.Aggregate.ByRun),
		ByModel:     cloneCounts(t.data.Aggregate.ByModel),
		ByOperation: cloneCounts(t.data.Aggregate.ByOperation),
	}
}

func cloneCounts(src map[string]Counts) map[string]Counts {
	dst := make(map[string]Counts, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// NewContext returns a context carrying t, for ambient propagation down
// into the planner/convergence loop without threading an extra parameter.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext retrieves the Tracker stored by NewContext, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(contextKey{}).(*Tracker)
	return t
}
