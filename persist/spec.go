package persist

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DirectorySpec describes one directory that must exist on both the storage
// side and the destination side before bind-mounting.
//
// A DirectorySpec is an immutable value: it is constructed once from
// flattened declarative input and never modified afterwards. User, Group and
// Mode are possibly-empty strings; empty means "unspecified, use the
// filesystem default".
type DirectorySpec struct {
	// StoragePath is the absolute root of durable storage holding the
	// persisted directory trees.
	StoragePath string

	// Root is the absolute ephemeral root the directory is bound into.
	Root string

	// RelativePath locates the directory under both StoragePath and Root.
	// After cleaning it must not contain a ".." component.
	RelativePath string

	// SourceOverride, when non-empty, replaces the derived source path
	// (StoragePath + RelativePath). It must still resolve, on the real
	// filesystem, to the same directory the derived path resolves to.
	SourceOverride string

	// DestinationOverride, when non-empty, replaces the derived destination
	// path (Root + RelativePath) under the same consistency rule.
	DestinationOverride string

	// User, Group and Mode are the requested attributes of the directory.
	// Each may be empty ("unspecified"). Mode is an octal string.
	User  string
	Group string
	Mode  string

	// Implicit marks a directory materialized only because it is an
	// ancestor of some explicitly requested file or directory.
	Implicit bool
}

// Source returns the storage-side path of the directory: the override when
// set, otherwise StoragePath joined with RelativePath, cleaned.
func (s DirectorySpec) Source() string {
	if s.SourceOverride != "" {
		return filepath.Clean(s.SourceOverride)
	}

	return filepath.Clean(filepath.Join(s.StoragePath, s.RelativePath))
}

// Destination returns the destination-side path of the directory: the
// override when set, otherwise Root joined with RelativePath, cleaned.
func (s DirectorySpec) Destination() string {
	if s.DestinationOverride != "" {
		return filepath.Clean(s.DestinationOverride)
	}

	return filepath.Clean(filepath.Join(s.Root, s.RelativePath))
}

// Validate checks the lexical invariants of the spec. Consistency of
// overrides against the real filesystem is checked later, during
// materialization, where symlinks can be resolved.
func (s DirectorySpec) Validate() error {
	var errs []error

	if !filepath.IsAbs(s.StoragePath) {
		errs = append(errs, fmt.Errorf("storage path %q is not absolute", s.StoragePath))
	}

	if !filepath.IsAbs(s.Root) {
		errs = append(errs, fmt.Errorf("root %q is not absolute", s.Root))
	}

	if strings.TrimSpace(s.RelativePath) == "" {
		errs = append(errs, errors.New("relative path is empty"))
	} else if filepath.IsAbs(s.RelativePath) {
		// Absolute declarations are accepted; they are anchored at the
		// respective base by ConcatPaths-style joining.
		cleaned := filepath.Clean(s.RelativePath)
		if cleaned == "/" {
			errs = append(errs, errors.New(`relative path resolves to "/"`))
		}
	} else {
		cleaned, err := CleanPath(s.RelativePath)
		if err != nil {
			errs = append(errs, err)
		} else if cleaned == ".." || strings.HasPrefix(cleaned, "../") || cleaned == "." {
			errs = append(errs, fmt.Errorf("%w: relative path %q", ErrPathTraversal, s.RelativePath))
		}
	}

	if s.SourceOverride != "" && !filepath.IsAbs(s.SourceOverride) {
		errs = append(errs, fmt.Errorf("source override %q is not absolute", s.SourceOverride))
	}

	if s.DestinationOverride != "" && !filepath.IsAbs(s.DestinationOverride) {
		errs = append(errs, fmt.Errorf("destination override %q is not absolute", s.DestinationOverride))
	}

	if len(errs) == 0 && s.Source() == s.Destination() {
		errs = append(errs, fmt.Errorf("source and destination are both %q", s.Source()))
	}

	return errors.Join(errs...)
}

// RelativeComponents returns the path components of RelativePath in
// shallowest-to-deepest order, rejecting any literal ".." component before
// cleaning can hide it.
func (s DirectorySpec) RelativeComponents() ([]string, error) {
	for _, part := range strings.Split(s.RelativePath, "/") {
		if part == ".." {
			return nil, fmt.Errorf("%w: %q contains a literal \"..\"", ErrPathTraversal, s.RelativePath)
		}
	}

	trimmed := strings.TrimPrefix(s.RelativePath, "/")

	return SplitPath(trimmed)
}

// normalizedView holds trailing-slash-suffixed forms of the spec's paths.
// It exists solely to make strict-prefix tests on strings correct ("/aaa/"
// is never a false prefix of "/aaaa/") and must never be used for
// filesystem access.
type normalizedView struct {
	source      string
	destination string
	storagePath string
}

func normalize(s DirectorySpec) normalizedView {
	return normalizedView{
		source:      normalizePrefix(s.Source()),
		destination: normalizePrefix(s.Destination()),
		storagePath: normalizePrefix(filepath.Clean(s.StoragePath)),
	}
}

// normalizePrefix suffixes a cleaned path with "/" so that strict-prefix
// comparison cannot match partial component names.
func normalizePrefix(path string) string {
	if path == "/" {
		return "/"
	}

	return path + "/"
}

// strictPrefix reports whether a is a strict prefix of b: b starts with a
// and a != b. Both arguments must be normalized (trailing-slash) forms.
func strictPrefix(a, b string) bool {
	return strings.HasPrefix(b, a) && a != b
}
