package domain

import "fmt"

// ArtifactSpec is a unit the planner commits to produce (GLOSSARY: Artifact).
type ArtifactSpec struct {
	ID                 string
	Description        string
	Produces           []string // path patterns, unique across the graph
	Requires           []string // artifact ids this depends on
	ValidationCommands []string
}

// ArtifactGraph is a DAG over ArtifactSpecs: the planner's output and the
// convergence loop's input (spec.md §3).
type ArtifactGraph struct {
	specs map[string]ArtifactSpec
	order []string
}

// NewArtifactGraph returns an empty graph.
func NewArtifactGraph() *ArtifactGraph {
	return &ArtifactGraph{specs: make(map[string]ArtifactSpec)}
}

// ErrDuplicateArtifact is returned when two specs share an id.
type ErrDuplicateArtifact struct{ ID string }

func (e ErrDuplicateArtifact) Error() string { return fmt.Sprintf("duplicate artifact id %q", e.ID) }

// ErrDanglingRequires is returned when a spec's Requires names an id absent
// from the graph.
type ErrDanglingRequires struct{ ArtifactID, RequiredID string }

func (e ErrDanglingRequires) Error() string {
	return fmt.Sprintf("artifact %q requires unknown artifact %q", e.ArtifactID, e.RequiredID)
}

// ErrDuplicateProduces is returned when two specs claim the same produced path.
type ErrDuplicateProduces struct{ Path, FirstOwner, SecondOwner string }

func (e ErrDuplicateProduces) Error() string {
	return fmt.Sprintf("path %q produced by both %q and %q", e.Path, e.FirstOwner, e.SecondOwner)
}

// ErrCyclicArtifacts is returned when Requires edges form a cycle.
type ErrCyclicArtifacts struct{ ArtifactID string }

func (e ErrCyclicArtifacts) Error() string {
	return fmt.Sprintf("artifact %q participates in a requires cycle", e.ArtifactID)
}

// Add inserts a spec, checking two graph invariants incrementally: unique
// id and unique produced paths. Requires may reference specs added later in
// the same construction pass, so dangling requires and cycles are checked
// only by Validate.
func (g *ArtifactGraph) Add(spec ArtifactSpec) error {
	if _, exists := g.specs[spec.ID]; exists {
		return ErrDuplicateArtifact{ID: spec.ID}
	}
	for _, existing := range g.specs {
		for _, p := range spec.Produces {
			for _, ep := range existing.Produces {
				if p == ep {
					return ErrDuplicateProduces{Path: p, FirstOwner: existing.ID, SecondOwner: spec.ID}
				}
			}
		}
	}
	g.specs[spec.ID] = spec
	g.order = append(g.order, spec.ID)
	return nil
}

// Get returns a spec by id.
func (g *ArtifactGraph) Get(id string) (ArtifactSpec, bool) {
	s, ok := g.specs[id]
	return s, ok
}

// IDs returns all artifact ids in insertion order.
func (g *ArtifactGraph) IDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Len returns the number of artifacts in the graph.
func (g *ArtifactGraph) Len() int { return len(g.specs) }

// Validate checks the full invariant set from spec.md §3: acyclic, every
// requires resolves to an id in the graph, every produces path is unique
// across the graph (spec.md §8 property 2).
func (g *ArtifactGraph) Validate() error {
	for _, spec := range g.specs {
		for _, req := range spec.Requires {
			if _, ok := g.specs[req]; !ok {
				return ErrDanglingRequires{ArtifactID: spec.ID, RequiredID: req}
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.specs))
	var visit func(id string) bool
	visit = func(id string) bool {
		switch color[id] {
		case gray:
			return true
		case black:
			return false
		}
		color[id] = gray
		for _, req := range g.specs[id].Requires {
			if visit(req) {
				return true
			}
		}
		color[id] = black
		return false
	}
	for _, id := range g.order {
		if color[id] == white && visit(id) {
			return ErrCyclicArtifacts{ArtifactID: id}
		}
	}
	return nil
}

// TopoOrder returns artifact ids in an order where every id appears after
// everything it Requires. Validate should be called first; TopoOrder does
// not itself detect cycles (it would simply omit participants of one).
func (g *ArtifactGraph) TopoOrder() []string {
	visited := make(map[string]bool, len(g.specs))
	var out []string
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, req := range g.specs[id].Requires {
			visit(req)
		}
		out = append(out, id)
	}
	for _, id := range g.order {
		visit(id)
	}
	return out
}
