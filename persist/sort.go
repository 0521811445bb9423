package persist

// SortSpecs orders specs so that every spec is preceded by all specs that
// must be materialized before it. The relation "b depends on a" holds when
// any of:
//
//  1. a's normalized source is a strict prefix of b's (a's source directory
//     is an ancestor of b's),
//  2. the same for the normalized destinations,
//  3. a and b refer to the same physical directory (equal source or equal
//     destination) and a is explicit while b is implicit - explicit
//     attribute intent must be established before any implicitly inferred
//     attribute touches the same path.
//
// Two specs for the same directory at the same implicit level with
// different user/group/mode are not orderable; the pair is modeled as a
// cycle so the conflict surfaces as a [CycleError] instead of silently
// picking a winner.
//
// Edge construction is O(n²) string-prefix tests over n specs; correctness,
// not sub-quadratic complexity, is the point.
func SortSpecs(specs []DirectorySpec) ([]DirectorySpec, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	views := make([]normalizedView, len(specs))
	for i, spec := range specs {
		views[i] = normalize(spec)
	}

	graph := newDepGraph(len(specs))

	for i := range specs {
		for j := range specs {
			if i == j {
				continue
			}

			if dependsOn(specs[j], views[j], specs[i], views[i]) {
				graph.addEdge(i, j)
			}
		}
	}

	order, cycle := graph.topoSort()
	if cycle != nil {
		conflicting := make([]DirectorySpec, 0, len(cycle))
		for _, idx := range cycle {
			conflicting = append(conflicting, specs[idx])
		}

		return nil, &CycleError{Specs: conflicting}
	}

	sorted := make([]DirectorySpec, 0, len(specs))
	for _, idx := range order {
		sorted = append(sorted, specs[idx])
	}

	return sorted, nil
}

// dependsOn reports whether b depends on a, i.e. a must be materialized
// first.
func dependsOn(b DirectorySpec, bView normalizedView, a DirectorySpec, aView normalizedView) bool {
	if strictPrefix(aView.source, bView.source) {
		return true
	}

	if strictPrefix(aView.destination, bView.destination) {
		return true
	}

	samePhysical := a.Source() == b.Source() || a.Destination() == b.Destination()
	if !samePhysical {
		return false
	}

	if !a.Implicit && b.Implicit {
		return true
	}

	// Same implicit level with diverging attributes: emit the edge in both
	// directions (this call runs for both ordered pairs), which the sorter
	// reports as a cycle.
	if a.Implicit == b.Implicit && attrsDiffer(a, b) {
		return true
	}

	return false
}

func attrsDiffer(a, b DirectorySpec) bool {
	return a.User != b.User || a.Group != b.Group || a.Mode != b.Mode
}
