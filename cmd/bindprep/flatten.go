package main

import (
	"errors"
	"fmt"
	"os/user"
	"path/filepath"
	"sort"
	"strings"

	"bindprep/persist"
)

// ErrInvalidConfig is returned when the configuration cannot be
// flattened into directory specs.
var ErrInvalidConfig = errors.New("invalid config")

// FlattenConfig converts the declarative config into the flat list of
// directory specs the persist package operates on.
//
// Explicitly declared directories become explicit specs. Files
// contribute the implicit spec of their parent directory; a file
// declared by a user implies a parent directory owned by that user.
// Per-user entries are resolved against the user's declared home
// directory, which must be absolute.
func FlattenConfig(cfg *Config) ([]persist.DirectorySpec, error) {
	root := cfg.Root
	if root == "" {
		root = "/"
	}

	var specs []persist.DirectorySpec

	var errs []error

	// Deterministic order regardless of map iteration.
	storagePaths := make([]string, 0, len(cfg.Roots))
	for path := range cfg.Roots {
		storagePaths = append(storagePaths, path)
	}

	sort.Strings(storagePaths)

	for _, storagePath := range storagePaths {
		entries := cfg.Roots[storagePath]

		rootSpecs, err := flattenStorageRoot(storagePath, root, entries)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		specs = append(specs, rootSpecs...)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return specs, nil
}

func flattenStorageRoot(storagePath, root string, entries StorageRoot) ([]persist.DirectorySpec, error) {
	var specs []persist.DirectorySpec

	var errs []error

	dirSpecs, err := flattenDirectories(storagePath, root, "", "", entries.Directories)
	if err != nil {
		errs = append(errs, err)
	}

	specs = append(specs, dirSpecs...)

	fileSpecs, err := flattenFiles(storagePath, root, "", "", entries.Files)
	if err != nil {
		errs = append(errs, err)
	}

	specs = append(specs, fileSpecs...)

	userNames := make([]string, 0, len(entries.Users))
	for name := range entries.Users {
		userNames = append(userNames, name)
	}

	sort.Strings(userNames)

	for _, name := range userNames {
		entry := entries.Users[name]

		userSpecs, err := flattenUser(storagePath, root, name, entry)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		specs = append(specs, userSpecs...)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return specs, nil
}

func flattenUser(storagePath, root, name string, entry UserEntry) ([]persist.DirectorySpec, error) {
	if entry.Home == "" {
		return nil, fmt.Errorf("%w: user %q under %s has no home directory", ErrInvalidConfig, name, storagePath)
	}

	if !filepath.IsAbs(entry.Home) {
		return nil, fmt.Errorf("%w: user %q under %s: home %q is not absolute", ErrInvalidConfig, name, storagePath, entry.Home)
	}

	// Cross-check against the system user database when the user exists
	// there. A user declared in config but absent from the database is
	// fine (the system may not have created it yet).
	if sys, err := user.Lookup(name); err == nil && sys.HomeDir != "" {
		if filepath.Clean(sys.HomeDir) != filepath.Clean(entry.Home) {
			return nil, fmt.Errorf("%w: user %q home mismatch: config declares %s, system reports %s",
				ErrInvalidConfig, name, entry.Home, sys.HomeDir)
		}
	}

	var errs []error

	dirSpecs, err := flattenDirectories(storagePath, root, name, entry.Home, entry.Directories)
	if err != nil {
		errs = append(errs, err)
	}

	fileSpecs, err := flattenFiles(storagePath, root, name, entry.Home, entry.Files)
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return append(dirSpecs, fileSpecs...), nil
}

// flattenDirectories converts one directory list into explicit specs.
// When owner is non-empty the entries belong to that user: relative
// paths resolve against home, and the user becomes the default owner.
func flattenDirectories(storagePath, root, owner, home string, entries []DirectoryEntry) ([]persist.DirectorySpec, error) {
	paths := make([]string, 0, len(entries))
	specs := make([]persist.DirectorySpec, 0, len(entries))

	for _, entry := range entries {
		if entry.Directory == "" {
			return nil, fmt.Errorf("%w: directory entry under %s has no path", ErrInvalidConfig, storagePath)
		}

		rel, err := entryRelativePath(entry.Directory, owner, home)
		if err != nil {
			return nil, fmt.Errorf("%w: directory %q under %s: %w", ErrInvalidConfig, entry.Directory, storagePath, err)
		}

		if entry.Mode != "" {
			_, err := persist.ParseMode(entry.Mode)
			if err != nil {
				return nil, fmt.Errorf("%w: directory %q under %s: %w", ErrInvalidConfig, entry.Directory, storagePath, err)
			}
		}

		paths = append(paths, rel)

		specUser := entry.User
		if specUser == "" {
			specUser = owner
		}

		specs = append(specs, persist.DirectorySpec{
			StoragePath:  storagePath,
			Root:         root,
			RelativePath: rel,
			User:         specUser,
			Group:        entry.Group,
			Mode:         entry.Mode,
		})
	}

	if dups := persist.Duplicates(paths); len(dups) > 0 {
		return nil, fmt.Errorf("%w: duplicate directories under %s: %s",
			ErrInvalidConfig, listContext(storagePath, owner), strings.Join(dups, ", "))
	}

	return specs, nil
}

// flattenFiles converts one file list into the implicit specs of the
// files' parent directories.
func flattenFiles(storagePath, root, owner, home string, entries []FileEntry) ([]persist.DirectorySpec, error) {
	paths := make([]string, 0, len(entries))

	var specs []persist.DirectorySpec

	seenParents := map[string]bool{}

	for _, entry := range entries {
		if entry.File == "" {
			return nil, fmt.Errorf("%w: file entry under %s has no path", ErrInvalidConfig, storagePath)
		}

		rel, err := entryRelativePath(entry.File, owner, home)
		if err != nil {
			return nil, fmt.Errorf("%w: file %q under %s: %w", ErrInvalidConfig, entry.File, storagePath, err)
		}

		paths = append(paths, rel)

		parent := filepath.Dir(rel)
		if parent == "/" || seenParents[parent] {
			continue
		}

		seenParents[parent] = true

		specs = append(specs, persist.DirectorySpec{
			StoragePath:  storagePath,
			Root:         root,
			RelativePath: parent,
			User:         owner,
			Implicit:     true,
		})
	}

	if dups := persist.Duplicates(paths); len(dups) > 0 {
		return nil, fmt.Errorf("%w: duplicate files under %s: %s",
			ErrInvalidConfig, listContext(storagePath, owner), strings.Join(dups, ", "))
	}

	return specs, nil
}

// entryRelativePath resolves one config path to the spec-relative path
// under the storage and ephemeral roots. User entries may be relative
// (resolved against home) or absolute (must stay inside home).
func entryRelativePath(path, owner, home string) (string, error) {
	if owner == "" {
		if !filepath.IsAbs(path) {
			return "", errors.New("path must be absolute")
		}

		return filepath.Clean(path), nil
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(home, path)
	}

	path = filepath.Clean(path)

	cleanHome := filepath.Clean(home)
	if path != cleanHome && !strings.HasPrefix(path, cleanHome+"/") {
		return "", fmt.Errorf("path %s escapes home %s", path, cleanHome)
	}

	return path, nil
}

func listContext(storagePath, owner string) string {
	if owner == "" {
		return storagePath
	}

	return fmt.Sprintf("%s (user %s)", storagePath, owner)
}
