//go:build linux

package persist

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func mustStatMode(t *testing.T, path string) os.FileMode {
	t.Helper()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}

	return info.Mode() & (os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky)
}

func assertNoStagingLeftovers(t *testing.T, root string) {
	t.Helper()

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if strings.HasPrefix(entry.Name(), ".bindprep-") {
			t.Errorf("staging directory left behind: %s", path)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("walking %s: %v", root, err)
	}
}

// ============================================================================
// Fresh materialization
// ============================================================================

func Test_Materialize_Creates_Source_And_Destination_Trees(t *testing.T) {
	t.Parallel()

	storage := t.TempDir()
	root := t.TempDir()

	m := &Materializer{}

	spec := DirectorySpec{StoragePath: storage, Root: root, RelativePath: "/var/lib/iwd"}

	err := m.Materialize(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, path := range []string{
		filepath.Join(storage, "var", "lib", "iwd"),
		filepath.Join(root, "var", "lib", "iwd"),
	} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("expected directory %s: %v", path, err)
		}

		if !info.IsDir() {
			t.Errorf("%s is not a directory", path)
		}
	}

	assertNoStagingLeftovers(t, storage)
	assertNoStagingLeftovers(t, root)
}

func Test_Materialize_Applies_Declared_Mode_At_Every_Created_Level(t *testing.T) {
	t.Parallel()

	storage := t.TempDir()
	root := t.TempDir()

	m := &Materializer{}

	spec := DirectorySpec{StoragePath: storage, Root: root, RelativePath: "/srv/data", Mode: "0750"}

	err := m.Materialize(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Every created source component carries the declared mode, and each
	// destination component copies attributes from its source.
	for _, rel := range []string{"srv", filepath.Join("srv", "data")} {
		if mode := mustStatMode(t, filepath.Join(storage, rel)); mode != 0o750 {
			t.Errorf("source %s mode = %o, want 0750", rel, mode)
		}

		if mode := mustStatMode(t, filepath.Join(root, rel)); mode != 0o750 {
			t.Errorf("destination %s mode = %o, want 0750", rel, mode)
		}
	}
}

func Test_Materialize_Copies_Attributes_From_Existing_Source(t *testing.T) {
	t.Parallel()

	storage := t.TempDir()
	root := t.TempDir()

	// Pre-existing persisted directory with a restrictive mode.
	err := os.MkdirAll(filepath.Join(storage, "home", "alice"), 0o755)
	if err != nil {
		t.Fatal(err)
	}

	err = os.Chmod(filepath.Join(storage, "home", "alice"), 0o700)
	if err != nil {
		t.Fatal(err)
	}

	m := &Materializer{}

	spec := DirectorySpec{StoragePath: storage, Root: root, RelativePath: "/home/alice"}

	err = m.Materialize(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mode := mustStatMode(t, filepath.Join(root, "home", "alice")); mode != 0o700 {
		t.Errorf("destination mode = %o, want 0700 (copied from source)", mode)
	}
}

func Test_Materialize_Syncs_Existing_Unprocessed_Destination_From_Source(t *testing.T) {
	t.Parallel()

	storage := t.TempDir()
	root := t.TempDir()

	err := os.MkdirAll(filepath.Join(storage, "etc", "nixos"), 0o755)
	if err != nil {
		t.Fatal(err)
	}

	err = os.Chmod(filepath.Join(storage, "etc", "nixos"), 0o750)
	if err != nil {
		t.Fatal(err)
	}

	// Destination already exists with diverging permissions.
	err = os.MkdirAll(filepath.Join(root, "etc", "nixos"), 0o777)
	if err != nil {
		t.Fatal(err)
	}

	m := &Materializer{}

	spec := DirectorySpec{StoragePath: storage, Root: root, RelativePath: "/etc/nixos"}

	err = m.Materialize(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mode := mustStatMode(t, filepath.Join(root, "etc", "nixos")); mode != 0o750 {
		t.Errorf("destination mode = %o, want 0750 (synced from source)", mode)
	}
}

// ============================================================================
// Processed set - first writer wins
// ============================================================================

func Test_Run_First_Spec_Finalizes_Destination_For_Whole_Run(t *testing.T) {
	t.Parallel()

	storageA := t.TempDir()
	storageB := t.TempDir()
	root := t.TempDir()

	m := &Materializer{}

	explicit := DirectorySpec{StoragePath: storageA, Root: root, RelativePath: "/foo/bar", Mode: "0770"}
	implicit := DirectorySpec{StoragePath: storageB, Root: root, RelativePath: "/foo/bar", Mode: "0755", Implicit: true}

	err := m.Run([]DirectorySpec{explicit, implicit})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The explicit spec ran first; the implicit revisit must not overwrite.
	if mode := mustStatMode(t, filepath.Join(root, "foo", "bar")); mode != 0o770 {
		t.Errorf("destination mode = %o, want 0770 (first writer wins)", mode)
	}

	// The implicit spec's source side still exists, with attributes copied
	// from the finalized destination.
	if mode := mustStatMode(t, filepath.Join(storageB, "foo", "bar")); mode != 0o770 {
		t.Errorf("implicit source mode = %o, want 0770 (copied from destination)", mode)
	}
}

func Test_Run_Later_Spec_Owns_Its_Source_Ancestors_Of_Finalized_Destinations(t *testing.T) {
	t.Parallel()

	if os.Geteuid() != 0 {
		t.Skip("requires root to chown")
	}

	storageDef := t.TempDir()
	storageAbc := t.TempDir()
	root := t.TempDir()

	m := &Materializer{}

	// Two storage roots sharing a destination prefix: the first spec
	// finalizes /foo/bar/bazz, the second declares a directory below it.
	specs := []DirectorySpec{
		{StoragePath: storageDef, Root: root, RelativePath: "/foo/bar/bazz", User: "23456"},
		{StoragePath: storageAbc, Root: root, RelativePath: "/foo/bar/bazz/quux", User: "12345"},
	}

	err := m.Run(specs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dest, err := statAttrs(filepath.Join(root, "foo", "bar", "bazz"))
	if err != nil {
		t.Fatal(err)
	}

	if dest.uid != 23456 {
		t.Errorf("destination uid = %d, want 23456 (first writer wins)", dest.uid)
	}

	// The second spec's source ancestor cannot copy from the already
	// finalized destination, so its declared owner applies there too.
	source, err := statAttrs(filepath.Join(storageAbc, "foo", "bar", "bazz"))
	if err != nil {
		t.Fatal(err)
	}

	if source.uid != 12345 {
		t.Errorf("source ancestor uid = %d, want 12345 (declared owner)", source.uid)
	}
}

// ============================================================================
// Idempotence
// ============================================================================

func Test_Run_Twice_Is_A_NoOp_The_Second_Time(t *testing.T) {
	t.Parallel()

	storage := t.TempDir()
	root := t.TempDir()

	m := &Materializer{}

	specs := []DirectorySpec{
		{StoragePath: storage, Root: root, RelativePath: "/var/lib", Mode: "0755"},
		{StoragePath: storage, Root: root, RelativePath: "/var/lib/iwd", Mode: "0700"},
	}

	err := m.Run(specs)
	if err != nil {
		t.Fatalf("first run: unexpected error: %v", err)
	}

	firstMode := mustStatMode(t, filepath.Join(root, "var", "lib", "iwd"))

	err = m.Run(specs)
	if err != nil {
		t.Fatalf("second run: unexpected error: %v", err)
	}

	if mode := mustStatMode(t, filepath.Join(root, "var", "lib", "iwd")); mode != firstMode {
		t.Errorf("mode changed between runs: %o != %o", mode, firstMode)
	}

	assertNoStagingLeftovers(t, storage)
	assertNoStagingLeftovers(t, root)
}

// ============================================================================
// Consistency and failure handling
// ============================================================================

func Test_Materialize_Fails_On_Symlinked_Destination_Ancestor(t *testing.T) {
	t.Parallel()

	storage := t.TempDir()
	root := t.TempDir()
	elsewhere := t.TempDir()

	// /var inside the root is a symlink pointing out of the tree; the real
	// path no longer matches the derived path.
	err := os.Symlink(elsewhere, filepath.Join(root, "var"))
	if err != nil {
		t.Fatal(err)
	}

	m := &Materializer{}

	spec := DirectorySpec{StoragePath: storage, Root: root, RelativePath: "/var/lib"}

	err = m.Materialize(spec)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if !errors.Is(err, ErrInternalConsistency) {
		t.Errorf("expected ErrInternalConsistency, got: %v", err)
	}
}

func Test_Materialize_Fails_When_Destination_Is_A_File(t *testing.T) {
	t.Parallel()

	storage := t.TempDir()
	root := t.TempDir()

	err := os.WriteFile(filepath.Join(root, "var"), []byte("not a dir"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	m := &Materializer{}

	spec := DirectorySpec{StoragePath: storage, Root: root, RelativePath: "/var/lib"}

	err = m.Materialize(spec)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("expected not-a-directory error, got: %v", err)
	}
}

func Test_Materialize_Rejects_Literal_DotDot_Component(t *testing.T) {
	t.Parallel()

	m := &Materializer{}

	spec := DirectorySpec{StoragePath: t.TempDir(), Root: t.TempDir(), RelativePath: "var/../../lib"}

	err := m.Materialize(spec)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if !errors.Is(err, ErrPathTraversal) {
		t.Errorf("expected ErrPathTraversal, got: %v", err)
	}
}

func Test_Materialize_Failure_Leaves_Finished_Directories_Intact(t *testing.T) {
	t.Parallel()

	storage := t.TempDir()
	root := t.TempDir()

	m := &Materializer{}

	good := DirectorySpec{StoragePath: storage, Root: root, RelativePath: "/var/lib", Mode: "0750"}
	bad := DirectorySpec{StoragePath: storage, Root: root, RelativePath: "/srv/../../oops"}

	err := m.Run([]DirectorySpec{good, bad})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	// The earlier spec's directories are fully attributed despite the abort.
	if mode := mustStatMode(t, filepath.Join(root, "var", "lib")); mode != 0o750 {
		t.Errorf("finished destination mode = %o, want 0750", mode)
	}

	assertNoStagingLeftovers(t, root)
}

// ============================================================================
// Debug and warning plumbing
// ============================================================================

func Test_Materialize_Emits_Debug_Trace_When_Enabled(t *testing.T) {
	t.Parallel()

	var lines []string

	m := &Materializer{
		Debugf: func(format string, args ...any) {
			lines = append(lines, format)
		},
	}

	spec := DirectorySpec{StoragePath: t.TempDir(), Root: t.TempDir(), RelativePath: "/var/lib"}

	err := m.Materialize(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(lines) == 0 {
		t.Error("expected debug trace output, got none")
	}
}

func Test_Materialize_Warns_When_Destination_Copy_Is_Unavailable(t *testing.T) {
	t.Parallel()

	var warnings int

	m := &Materializer{
		Warnf: func(format string, args ...any) { warnings++ },
	}

	// No existing destination to copy attributes from: every created
	// source level warns about the skipped copy.
	spec := DirectorySpec{StoragePath: t.TempDir(), Root: t.TempDir(), RelativePath: "/var/lib"}

	err := m.Materialize(spec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if warnings == 0 {
		t.Error("expected at least one warning, got none")
	}
}
