// Package persist prepares directory trees so that declared directories can
// later be bind-mounted from durable storage onto an otherwise ephemeral
// root filesystem.
//
// The package does not perform any mounts; it guarantees that every
// intermediate directory on both the storage ("source") side and the
// ephemeral ("destination") side exists exactly once, with ownership and
// permissions resolved from a well-defined precedence rule, before mounting
// happens.
//
// # Pipeline
//
// Callers flatten their declarative configuration into a list of
// [DirectorySpec] values and run them through:
//
//  1. [Duplicates] / [CheckRecursivePaths] - configuration sanity checks.
//  2. [SortSpecs] - topological sort over the "must be materialized
//     before" relation (nesting, aliasing, explicit-before-implicit).
//  3. [Materializer.Run] - sequential, idempotent execution against the
//     real filesystem.
//
// Sorting and checking are pure and perform no I/O. Materialization is
// strictly sequential: attribute provenance of later steps depends on the
// run-scoped state built by earlier steps.
package persist

import "fmt"

// Debugf receives step-by-step trace messages from sorting and
// materialization. A nil Debugf disables tracing.
//
// The function should be safe to call from any goroutine.
type Debugf func(format string, args ...any)

// internalErrorf reports an internal invariant violation.
//
// These errors indicate a bug in this package or a filesystem that changed
// meaning between planning and execution (for example, an unexpected
// symlink). They are never retried and always abort the run.
func internalErrorf(op, format string, args ...any) error {
	detail := fmt.Sprintf(format, args...)

	if op == "" {
		return fmt.Errorf("%w: %s", ErrInternalConsistency, detail)
	}

	return fmt.Errorf("%w: %s: %s", ErrInternalConsistency, op, detail)
}
