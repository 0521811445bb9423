package persist

import (
	"errors"
	"fmt"
	"strings"
)

// Static errors surfaced by the preparation pipeline.
var (
	// ErrPathTraversal is returned when resolving a relative path would
	// require escaping above its starting point, or when a literal ".."
	// component survives into materialization.
	ErrPathTraversal = errors.New("path escapes above its root")

	// ErrRecursivePersistentPath is returned when one storage root's path
	// lies inside another spec's destination tree, which would create a
	// directory cycle across mounts.
	ErrRecursivePersistentPath = errors.New("recursive persistent storage path")

	// ErrInternalConsistency is returned when a resolved real path disagrees
	// with the path derived from the spec. This is an invariant violation,
	// not a user error, and is always fatal.
	ErrInternalConsistency = errors.New("internal consistency violation")
)

// CycleError reports that the dependency relation over a set of specs
// contains a cycle and no valid materialization order exists.
//
// A cycle is either a structural contradiction or - deliberately - a pair of
// specs for the same directory, at the same implicit level, with different
// user/group/mode. Such a pair has no correct ordering, so it is reported as
// a conflict instead of picking an arbitrary winner.
type CycleError struct {
	// Specs holds the mutually conflicting specs, in input order.
	Specs []DirectorySpec
}

func (e *CycleError) Error() string {
	if len(e.Specs) == 0 {
		return "unsortable directory dependencies"
	}

	dests := make([]string, 0, len(e.Specs))
	for _, spec := range e.Specs {
		dests = append(dests, spec.Destination())
	}

	return fmt.Sprintf("unsortable directory dependencies: %s", strings.Join(dests, ", "))
}
