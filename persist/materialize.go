//go:build linux

package persist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Materializer sequentially executes sorted specs against the real
// filesystem, creating or reconciling one directory level at a time.
//
// Processing order must follow the sorted order exactly: the attribute
// provenance of later steps depends on the run-scoped processed set built
// by earlier steps, so a Materializer run must never be parallelized.
//
// Every step is individually idempotent - an existing, correctly attributed
// directory is detected and left alone or merely re-synced, never
// recreated - which makes re-running after an interrupted run safe.
type Materializer struct {
	// Debugf receives step-by-step trace output. Nil disables tracing.
	Debugf Debugf

	// Warnf receives non-fatal warnings, for example when attributes could
	// not be copied from an existing destination. Nil discards warnings.
	Warnf func(format string, args ...any)
}

// Run materializes specs in the given order, sharing one processed set
// across the whole run. The set maps a resolved destination path to
// "already finalized in this run": once an earlier, higher-precedence spec
// has written a destination's attributes, later specs revisiting the same
// path leave it untouched.
//
// Any failure aborts the run immediately; nothing is retried.
func (m *Materializer) Run(specs []DirectorySpec) error {
	processed := make(map[string]bool)

	for _, spec := range specs {
		err := m.materialize(processed, spec)
		if err != nil {
			return err
		}
	}

	return nil
}

// Materialize executes a single spec as its own run.
func (m *Materializer) Materialize(spec DirectorySpec) error {
	return m.Run([]DirectorySpec{spec})
}

func (m *Materializer) materialize(processed map[string]bool, spec DirectorySpec) error {
	err := spec.Validate()
	if err != nil {
		return fmt.Errorf("invalid directory spec: %w", err)
	}

	components, err := spec.RelativeComponents()
	if err != nil {
		return err
	}

	if len(components) == 0 {
		return internalErrorf("materialize", "spec %q has no path components", spec.RelativePath)
	}

	m.debugf("materializing %s -> %s (implicit=%t)", spec.Source(), spec.Destination(), spec.Implicit)

	// The bases themselves may legitimately sit behind symlinks (e.g.
	// /var/run); everything below them must not, so expected paths are
	// derived from the resolved bases plus the literal components.
	sourceBase, err := realPath(filepath.Clean(spec.StoragePath))
	if err != nil {
		return err
	}

	destBase, err := realPath(filepath.Clean(spec.Root))
	if err != nil {
		return err
	}

	for i, component := range components {
		final := i == len(components)-1
		prefix := components[: i+1 : i+1]

		if component == ".." {
			return fmt.Errorf("%w: component %q in %q", ErrPathTraversal, component, spec.RelativePath)
		}

		expectedSource := joinPrefix(sourceBase, prefix)
		expectedDest := joinPrefix(destBase, prefix)

		candidateSource := joinPrefix(filepath.Clean(spec.StoragePath), prefix)
		candidateDest := joinPrefix(filepath.Clean(spec.Root), prefix)

		if final {
			candidateSource = spec.Source()
			candidateDest = spec.Destination()
		}

		realSource, err := realPath(candidateSource)
		if err != nil {
			return err
		}

		realDest, err := realPath(candidateDest)
		if err != nil {
			return err
		}

		// Trust the filesystem, not cached strings: a symlink introduced
		// between spec declaration and execution, or an override pointing
		// elsewhere, shows up as a real-vs-expected mismatch here.
		if realSource != expectedSource {
			return internalErrorf("source path", "%q resolves to %q, expected %q", candidateSource, realSource, expectedSource)
		}

		if realDest != expectedDest {
			return internalErrorf("destination path", "%q resolves to %q, expected %q", candidateDest, realDest, expectedDest)
		}

		destExists, err := dirExists(realDest)
		if err != nil {
			return err
		}

		err = m.ensureSource(processed, spec, realSource, realDest, destExists, final)
		if err != nil {
			return err
		}

		err = m.reconcileDest(processed, realSource, realDest, destExists)
		if err != nil {
			return err
		}
	}

	return nil
}

// ensureSource creates the source directory at this prefix when missing.
//
// Attribute provenance: an existing destination is authoritative when this
// is the final component of an implicit spec, or when the destination has
// not yet been finalized in this run. Otherwise the spec's own user/group/
// mode apply at every created prefix level, falling back to filesystem
// defaults for unspecified fields, and the skipped copy is warned about.
func (m *Materializer) ensureSource(processed map[string]bool, spec DirectorySpec, realSource, realDest string, destExists, final bool) error {
	sourceExists, err := dirExists(realSource)
	if err != nil {
		return err
	}

	if sourceExists {
		return nil
	}

	if destExists && ((final && spec.Implicit) || !processed[realDest]) {
		attrs, err := statAttrs(realDest)
		if err != nil {
			return err
		}

		m.debugf("creating source %s with attributes copied from existing destination %s", realSource, realDest)

		return atomicMkdir(realSource, attrs)
	}

	attrs, err := specAttrs(spec)
	if err != nil {
		return err
	}

	m.warnf("creating %s without attributes copied from a destination", realSource)

	return atomicMkdir(realSource, attrs)
}

// reconcileDest brings the destination at this prefix in line with the
// source directory, which ensureSource has guaranteed to exist.
//
// First successful writer wins: a destination already marked processed was
// finalized by an earlier, higher-precedence spec and is left untouched.
func (m *Materializer) reconcileDest(processed map[string]bool, realSource, realDest string, destExists bool) error {
	switch {
	case destExists && processed[realDest]:
		m.debugf("destination %s already finalized in this run", realDest)

		return nil

	case destExists:
		attrs, err := statAttrs(realSource)
		if err != nil {
			return err
		}

		m.debugf("syncing existing destination %s from source %s (uid %d gid %d mode %s)",
			realDest, realSource, attrs.uid, attrs.gid, formatMode(attrs.mode))

		err = applyAttrs(realDest, attrs, false)
		if err != nil {
			return err
		}

	default:
		attrs, err := statAttrs(realSource)
		if err != nil {
			return err
		}

		m.debugf("creating destination %s from source %s (uid %d gid %d mode %s)",
			realDest, realSource, attrs.uid, attrs.gid, formatMode(attrs.mode))

		err = atomicMkdir(realDest, attrs)
		if err != nil {
			return err
		}
	}

	processed[realDest] = true

	return nil
}

func (m *Materializer) debugf(format string, args ...any) {
	if m.Debugf != nil {
		m.Debugf(format, args...)
	}
}

func (m *Materializer) warnf(format string, args ...any) {
	if m.Warnf != nil {
		m.Warnf(format, args...)
	}
}

// atomicMkdir builds the directory fully attributed in a freshly created
// staging directory inside the same parent, then renames it into place in
// one step. The final path is never observable in a partially-attributed
// state. The staging directory must live on the same filesystem as the
// final location for the rename to be atomic.
func atomicMkdir(path string, attrs fileAttrs) error {
	parent := filepath.Dir(path)

	staging, err := os.MkdirTemp(parent, ".bindprep-")
	if err != nil {
		return fmt.Errorf("creating staging directory in %q: %w", parent, err)
	}

	err = applyAttrs(staging, attrs, true)
	if err == nil {
		err = os.Rename(staging, path)
	}

	if err != nil {
		_ = os.RemoveAll(staging)

		return fmt.Errorf("creating directory %q: %w", path, err)
	}

	return nil
}

// dirExists reports whether path exists as a directory. A non-directory at
// path is an error, not "missing": overwriting it would lose data.
func dirExists(path string) (bool, error) {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("stat %q: %w", path, err)
	}

	if !info.IsDir() {
		return false, fmt.Errorf("%q exists but is not a directory", path)
	}

	return true, nil
}

// realPath resolves path to its symlink-free form. Missing trailing
// components are allowed: the deepest existing ancestor is resolved and the
// remainder re-attached verbatim.
func realPath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("resolving %q: %w", path, err)
	}

	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}

	realParent, err := realPath(parent)
	if err != nil {
		return "", err
	}

	return filepath.Join(realParent, filepath.Base(path)), nil
}

func joinPrefix(base string, components []string) string {
	return filepath.Join(append([]string{base}, components...)...)
}
