package events

import (
	"sync"
	"time"

	"sunwell/internal/logging"
)

// DefaultMaxSubscribers is the connection cap from spec.md §4.1 / §6
// (event_bus.max_subscribers).
const DefaultMaxSubscribers = 100

// DefaultSubscriberTimeout bounds how long Broadcast waits on one
// subscriber before dropping that event for them (spec.md §4.1).
const DefaultSubscriberTimeout = time.Second

// DefaultRetentionRuns and DefaultRetentionDuration implement "TTL 1h or
// 100 runs, whichever is smaller" (spec.md §4.1).
const (
	DefaultRetentionRuns     = 100
	DefaultRetentionDuration = time.Hour
)

// Filter narrows a subscription to events matching Predicate. A nil filter
// (or a nil Predicate) matches everything.
type Filter struct {
	RunID     string // empty matches all runs
	Predicate func(AgentEvent) bool
}

func (f Filter) matches(e AgentEvent) bool {
	if f.RunID != "" && f.RunID != e.RunID {
		return false
	}
	if f.Predicate != nil {
		return f.Predicate(e)
	}
	return true
}

type subscriber struct {
	id     uint64
	ch     chan AgentEvent
	filter Filter
}

// ErrBusFull is returned by Subscribe when the connection cap is reached.
type ErrBusFull struct{ Max int }

func (e ErrBusFull) Error() string {
	return "event bus: subscriber cap reached"
}

// runRecord tracks when a run's events become eviction-eligible, per the
// "completed/failed runs become eligible for eviction immediately" rule.
type runRecord struct {
	lastEventAt time.Time
	terminal    bool
}

// Bus is the typed, per-project-filterable event broadcaster of spec.md
// §4.1. It is owned by the orchestrator's Runtime and passed by reference;
// there is no package-level singleton (SPEC_FULL §9).
type Bus struct {
	mu             sync.RWMutex
	subscribers    []*subscriber
	nextID         uint64
	maxSubscribers int
	subTimeout     time.Duration
	retentionRuns  int
	retentionTTL   time.Duration

	events []AgentEvent
	runs   map[string]*runRecord
}

// NewBus constructs a Bus with spec.md defaults.
func NewBus() *Bus {
	return &Bus{
		maxSubscribers: DefaultMaxSubscribers,
		subTimeout:     DefaultSubscriberTimeout,
		retentionRuns:  DefaultRetentionRuns,
		retentionTTL:   DefaultRetentionDuration,
		runs:           make(map[string]*runRecord),
	}
}

// WithLimits overrides the cap, per-subscriber timeout, and retention
// policy. Intended for config.Config wiring and tests.
func (b *Bus) WithLimits(maxSubscribers int, subTimeout time.Duration, retentionRuns int, retentionTTL time.Duration) *Bus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if maxSubscribers > 0 {
		b.maxSubscribers = maxSubscribers
	}
	if subTimeout > 0 {
		b.subTimeout = subTimeout
	}
	if retentionRuns > 0 {
		b.retentionRuns = retentionRuns
	}
	if retentionTTL > 0 {
		b.retentionTTL = retentionTTL
	}
	return b
}

// Subscription is returned by Subscribe; callers range over Events and call
// Bus.Unsubscribe when done, which closes Events.
type Subscription struct {
	id     uint64
	Events <-chan AgentEvent
}

// Subscribe registers a new listener. Returns ErrBusFull past the
// connection cap (spec.md §4.1: "new subscriptions past the cap are
// rejected").
func (b *Bus) Subscribe(filter Filter) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subscribers) >= b.maxSubscribers {
		return nil, ErrBusFull{Max: b.maxSubscribers}
	}

	b.nextID++
	sub := &subscriber{
		id:     b.nextID,
		ch:     make(chan AgentEvent, 64),
		filter: filter,
	}
	b.subscribers = append(b.subscribers, sub)
	logging.Get(logging.CategoryEvents).Debug("subscriber %d registered (total=%d)", sub.id, len(b.subscribers))
	return &Subscription{id: sub.id, Events: sub.ch}, nil
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.id == sub.id {
			close(s.ch)
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Broadcast delivers event to every matching subscriber concurrently,
// giving each up to the configured timeout before dropping that event for
// that subscriber (spec.md §4.1, §5: "per-subscriber timeouts").
func (b *Bus) Broadcast(event AgentEvent) {
	b.mu.Lock()
	b.events = append(b.events, event)
	rec, ok := b.runs[event.RunID]
	if !ok {
		rec = &runRecord{}
		b.runs[event.RunID] = rec
	}
	rec.lastEventAt = time.Now()
	if isTerminal(event.Type) {
		rec.terminal = true
	}
	subs := make([]*subscriber, len(b.subscribers))
	copy(subs, b.subscribers)
	timeout := b.subTimeout
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range subs {
		if !s.filter.matches(event) {
			continue
		}
		wg.Add(1)
		go func(s *subscriber) {
			defer wg.Done()
			select {
			case s.ch <- event:
			case <-time.After(timeout):
				logging.Get(logging.CategoryEvents).Warn("subscriber %d slow, dropped event %s", s.id, event.Type)
			}
		}(s)
	}
	wg.Wait()
}

func isTerminal(t Type) bool {
	switch t {
	case TypeTaskComplete, TypeTaskFailed, TypeConvergenceEscalated, TypeError:
		return true
	default:
		return false
	}
}

// ListEvents returns all retained events for a run, oldest first, applying
// the retention policy (spec.md §4.1) before returning.
func (b *Bus) ListEvents(runID string) []AgentEvent {
	b.mu.Lock()
	b.evictLocked()
	b.mu.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []AgentEvent
	for _, e := range b.events {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

// evictLocked drops events belonging to runs past the retention window.
// Caller must hold b.mu for writing.
func (b *Bus) evictLocked() {
	now := time.Now()

	// TTL eviction.
	for id, rec := range b.runs {
		if now.Sub(rec.lastEventAt) > b.retentionTTL {
			delete(b.runs, id)
		}
	}

	// Run-count cap: drop runs beyond retentionRuns, independent of TTL.
	// Terminal (completed/failed) runs go first, oldest first; live runs
	// are dropped only once no terminal run is left.
	if len(b.runs) > b.retentionRuns {
		type kv struct {
			id       string
			at       time.Time
			terminal bool
		}
		ordered := make([]kv, 0, len(b.runs))
		for id, rec := range b.runs {
			ordered = append(ordered, kv{id, rec.lastEventAt, rec.terminal})
		}
		for len(ordered) > b.retentionRuns {
			oldestIdx := 0
			for i, e := range ordered {
				o := ordered[oldestIdx]
				if (e.terminal && !o.terminal) || (e.terminal == o.terminal && e.at.Before(o.at)) {
					oldestIdx = i
				}
			}
			delete(b.runs, ordered[oldestIdx].id)
			ordered = append(ordered[:oldestIdx], ordered[oldestIdx+1:]...)
		}
	}

	filtered := b.events[:0:0]
	for _, e := range b.events {
		if _, stillTracked := b.runs[e.RunID]; stillTracked {
			filtered = append(filtered, e)
		}
	}
	b.events = filtered
}

// SubscriberCount returns the current number of live subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
