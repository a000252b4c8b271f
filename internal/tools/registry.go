package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sunwell/internal/logging"
)

// Registry holds the tools available to one orchestrator Runtime. Unlike
// the teacher's package-level global registry, Sunwell carries one Registry
// per Runtime (SPEC_FULL §9: no singletons) so tests can construct an
// isolated set of tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Returns ErrToolAlreadyRegistered for a duplicate name.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the {name, description, parameters} triple for every
// registered tool, the model-facing shape from spec.md §6.
func (r *Registry) Schemas() []struct {
	Name        string
	Description string
	Parameters  Schema
} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]struct {
		Name        string
		Description string
		Parameters  Schema
	}, 0, len(r.tools))
	for _, name := range r.namesLocked() {
		t := r.tools[name]
		out = append(out, struct {
			Name        string
			Description string
			Parameters  Schema
		}{t.Name, t.Description, t.Schema})
	}
	return out
}

func (r *Registry) namesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named tool, returning ErrToolNotFound if it isn't
// registered. toolCallID is attributed to the returned Result untouched.
func (r *Registry) Execute(ctx context.Context, toolCallID, name string, args map[string]any) (Result, error) {
	tool := r.Get(name)
	if tool == nil {
		err := fmt.Errorf("%w: %s", ErrToolNotFound, name)
		return Result{ToolCallID: toolCallID, ToolName: name, Success: false, Error: err.Error()}, err
	}
	return r.run(ctx, toolCallID, tool, args)
}

func (r *Registry) run(ctx context.Context, toolCallID string, tool *Tool, args map[string]any) (Result, error) {
	start := time.Now()

	if err := r.validateArgs(tool, args); err != nil {
		return Result{
			ToolCallID: toolCallID,
			ToolName:   tool.Name,
			Success:    false,
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}, err
	}

	output, err := tool.Execute(ctx, args)
	duration := time.Since(start).Milliseconds()
	logging.Get(logging.CategoryTools).Debug("tool %s completed in %dms (success=%v)", tool.Name, duration, err == nil)

	res := Result{ToolCallID: toolCallID, ToolName: tool.Name, Output: output, DurationMs: duration}
	if err != nil {
		res.Success = false
		res.Error = err.Error()
		return res, err
	}
	res.Success = true
	return res, nil
}

func (r *Registry) validateArgs(tool *Tool, args map[string]any) error {
	for _, required := range tool.Schema.Required {
		if _, ok := args[required]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredArg, required)
		}
	}
	return nil
}
