package orchestrator

import "sort"

// planPhases groups agent ids into dependency-ordered execution phases using
// a Kahn-style topological layering: every round collects all nodes whose
// remaining dependencies are already scheduled, so independent agents land
// in the same phase and run concurrently. Grounded on
// original_source/agents/orchestrator.py's fixed EXECUTION_PLAN, which this
// reproduces exactly when fed the original's declared dependency graph
// (scout -> analyst -> {guardian, prospector} -> strategist -> planner).
func planPhases(deps map[string][]string) ([][]string, error) {
	remaining := make(map[string][]string, len(deps))
	for id, d := range deps {
		remaining[id] = append([]string(nil), d...)
	}

	var phases [][]string
	for len(remaining) > 0 {
		var ready []string
		for id, d := range remaining {
			if allScheduled(d, remaining) {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			return nil, cyclicError(remaining)
		}
		sort.Strings(ready)
		phases = append(phases, ready)
		for _, id := range ready {
			delete(remaining, id)
		}
	}
	return phases, nil
}

// allScheduled reports whether none of deps still has a pending entry in
// remaining, i.e. every dependency has already been placed in an earlier
// phase.
func allScheduled(deps []string, remaining map[string][]string) bool {
	for _, d := range deps {
		if _, stillPending := remaining[d]; stillPending {
			return false
		}
	}
	return true
}

func cyclicError(residue map[string][]string) error {
	ids := make([]string, 0, len(residue))
	for id := range residue {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &cyclicDependencyError{residue: ids}
}
