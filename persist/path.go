package persist

import (
	"fmt"
	"path/filepath"
	"strings"
)

// CleanPath lexically resolves "." and ".." components in path.
//
// Absolute paths resolve directly (".." at the root is dropped, matching
// filepath.Clean). Relative paths fail with [ErrPathTraversal] when
// resolution would require escaping above the starting point, since the
// caller has no anchor to resolve the remainder against.
//
// CleanPath is idempotent: CleanPath(CleanPath(p)) == CleanPath(p).
func CleanPath(path string) (string, error) {
	cleaned := filepath.Clean(path)

	if !filepath.IsAbs(cleaned) {
		if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return "", fmt.Errorf("%w: %q", ErrPathTraversal, path)
		}
	}

	return cleaned, nil
}

// SplitPath concatenates fragments into one path, cleans the result, and
// returns its non-empty components in order.
//
// For an absolute result the first component keeps its leading slash, so
// ConcatPaths(SplitPath(p)...) == CleanPath(p) holds for well-formed p.
// A path that cleans to "." or "/" has no components.
func SplitPath(fragments ...string) ([]string, error) {
	joined := joinFragments(fragments)

	cleaned, err := CleanPath(joined)
	if err != nil {
		return nil, err
	}

	if cleaned == "." || cleaned == "/" {
		return nil, nil
	}

	abs := strings.HasPrefix(cleaned, "/")
	parts := strings.Split(strings.TrimPrefix(cleaned, "/"), "/")

	if abs {
		parts[0] = "/" + parts[0]
	}

	return parts, nil
}

// ConcatPaths joins components with "/" and cleans the result. A later
// absolute-looking component resets the join to be absolute from that point,
// which is what makes joining a storage root with an absolute directory
// declaration behave predictably.
//
// An empty component list yields ".".
func ConcatPaths(components ...string) (string, error) {
	joined := joinFragments(components)
	if joined == "" {
		return ".", nil
	}

	return CleanPath(joined)
}

// joinFragments concatenates path fragments, letting an absolute fragment
// restart the join from itself.
func joinFragments(fragments []string) string {
	var joined string

	for _, fragment := range fragments {
		if fragment == "" {
			continue
		}

		switch {
		case strings.HasPrefix(fragment, "/"):
			joined = fragment
		case joined == "":
			joined = fragment
		default:
			joined = joined + "/" + fragment
		}
	}

	return joined
}
