// Package rules evaluates Sunwell's two declarative graph invariants —
// backlog eligibility and artifact-graph acyclicity — as Datalog programs
// instead of hand-rolled traversal code, grounded on the teacher's
// internal/core Mangle kernel (Fact/ToAtom, parse.Unit, analysis.AnalyzeOneUnit,
// factstore.NewSimpleInMemoryStore, engine.EvalProgramWithStats). Unlike the
// teacher's kernel this package carries no policy files, no learned-rule
// layer, and no self-healing: it compiles exactly two fixed programs and
// answers exactly two questions.
package rules

import (
	"fmt"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"
)

// derivedFactLimit bounds fixpoint evaluation, mirroring the teacher's
// defense against recursive rules exploding the fact count.
const derivedFactLimit = 500000

// Fact is a single EDB atom, named the way the teacher's internal/core.Fact
// is: a predicate symbol plus positional string arguments. Goal and artifact
// IDs are arbitrary strings (UUIDs, slugs), so arguments are encoded as
// Mangle string constants rather than name constants.
type Fact struct {
	Predicate string
	Args      []string
}

func (f Fact) toAtom() (ast.Atom, error) {
	terms := make([]ast.BaseTerm, 0, len(f.Args))
	for _, a := range f.Args {
		terms = append(terms, ast.String(a))
	}
	return ast.NewAtom(f.Predicate, terms...), nil
}

// program compiles a Datalog source text plus a set of EDB facts and
// evaluates it to fixpoint, returning the resulting store.
func program(source string, facts []Fact) (factstore.FactStore, error) {
	parsed, err := parse.Unit(strings.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("rules: parse: %w", err)
	}
	info, err := analysis.AnalyzeOneUnit(parsed, nil)
	if err != nil {
		return nil, fmt.Errorf("rules: analyze: %w", err)
	}

	store := factstore.NewSimpleInMemoryStore()
	for _, f := range facts {
		atom, err := f.toAtom()
		if err != nil {
			return nil, err
		}
		store.Add(atom)
	}

	var fs factstore.FactStore = store
	if _, err := engine.EvalProgramWithStats(info, fs, engine.WithCreatedFactLimit(derivedFactLimit)); err != nil {
		return nil, fmt.Errorf("rules: eval: %w", err)
	}
	return fs, nil
}

// queryUnary returns the first argument of every fact derived for a
// zero-or-one-arity predicate.
func queryUnary(store factstore.FactStore, predicate string) ([]string, error) {
	pred := ast.PredicateSym{Symbol: predicate, Arity: 1}
	var out []string
	err := store.GetFacts(ast.NewQuery(pred), func(a ast.Atom) error {
		if len(a.Args) != 1 {
			return nil
		}
		if c, ok := a.Args[0].(ast.Constant); ok {
			out = append(out, c.Symbol)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rules: query %s: %w", predicate, err)
	}
	return out, nil
}
