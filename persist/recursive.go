package persist

import "fmt"

// CheckRecursivePaths flags a persistence root nested inside another spec's
// destination tree.
//
// For every pair of specs drawn from different storage roots, it is an
// error when the other spec's full storage path lies strictly inside this
// spec's destination tree: the nested root would end up bind-mounted under
// a directory that is itself bound from the outer root, creating a
// directory cycle across mounts.
//
// The check only reports; nothing is corrected automatically.
func CheckRecursivePaths(specs []DirectorySpec) error {
	views := make([]normalizedView, len(specs))
	for i, spec := range specs {
		views[i] = normalize(spec)
	}

	for i, outer := range specs {
		for j, inner := range specs {
			if i == j || outer.StoragePath == inner.StoragePath {
				continue
			}

			if strictPrefix(views[i].destination, views[j].storagePath) {
				return fmt.Errorf("%w: storage root %q lies inside the destination tree of %q",
					ErrRecursivePersistentPath, inner.StoragePath, outer.Destination())
			}
		}
	}

	return nil
}
