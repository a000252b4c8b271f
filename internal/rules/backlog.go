package rules

// backlogProgram implements spec.md §3's eligibility rule declaratively: "a
// goal becomes eligible iff all of its requires are in completed, and it is
// not itself completed or blocked."
const backlogProgram = `
goal(X) :- requires(X, _).
goal(X) :- completed(X).
goal(X) :- blocked(X).
goal(X) :- tracked(X).

unmet(X) :- requires(X, Y), !completed(Y).
eligible(X) :- goal(X), !completed(X), !blocked(X), !unmet(X).
`

// EligibleGoals evaluates backlog eligibility as Datalog, given the full set
// of goal ids, their requires edges, and which ids are completed/blocked.
// It mirrors domain.Backlog.Eligible/EligibleGoals as a second,
// independently-maintained rule set (Datalog instead of Go traversal). No
// code or test in the module calls it or compares the two.
func EligibleGoals(ids []string, requires map[string][]string, completed, blocked map[string]bool) ([]string, error) {
	var facts []Fact
	for _, id := range ids {
		facts = append(facts, Fact{Predicate: "tracked", Args: []string{id}})
	}
	for from, tos := range requires {
		for _, to := range tos {
			facts = append(facts, Fact{Predicate: "requires", Args: []string{from, to}})
		}
	}
	for id, done := range completed {
		if done {
			facts = append(facts, Fact{Predicate: "completed", Args: []string{id}})
		}
	}
	for id, isBlocked := range blocked {
		if isBlocked {
			facts = append(facts, Fact{Predicate: "blocked", Args: []string{id}})
		}
	}

	store, err := program(backlogProgram, facts)
	if err != nil {
		return nil, err
	}
	return queryUnary(store, "eligible")
}
