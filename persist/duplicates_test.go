package persist

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Duplicates_Returns_Nil_For_Unique_List(t *testing.T) {
	t.Parallel()

	result := Duplicates([]string{"/var/lib", "/var/log", "/etc/nixos"})
	if result != nil {
		t.Errorf("Duplicates() = %v, want nil", result)
	}
}

func Test_Duplicates_Reports_Each_Offender_Once_In_Encounter_Order(t *testing.T) {
	t.Parallel()

	list := []string{"/b", "/a", "/b", "/c", "/a", "/b"}

	result := Duplicates(list)

	expected := []string{"/b", "/a"}
	if diff := cmp.Diff(expected, result); diff != "" {
		t.Errorf("Duplicates mismatch (-want +got):\n%s", diff)
	}
}

func Test_Duplicates_Handles_Empty_List(t *testing.T) {
	t.Parallel()

	if result := Duplicates[string](nil); result != nil {
		t.Errorf("Duplicates(nil) = %v, want nil", result)
	}
}

func Test_Duplicates_Works_Over_Specs(t *testing.T) {
	t.Parallel()

	spec := DirectorySpec{StoragePath: "/persist", Root: "/", RelativePath: "/var/lib"}
	other := DirectorySpec{StoragePath: "/persist", Root: "/", RelativePath: "/var/log"}

	result := Duplicates([]DirectorySpec{spec, other, spec})

	expected := []DirectorySpec{spec}
	if diff := cmp.Diff(expected, result); diff != "" {
		t.Errorf("Duplicates mismatch (-want +got):\n%s", diff)
	}
}
