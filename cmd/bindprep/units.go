package main

import (
	"fmt"
	"io"

	"github.com/coreos/go-systemd/v22/unit"

	"bindprep/persist"
)

// mountUnit is one generated systemd mount unit.
type mountUnit struct {
	// Name is the unit file name, derived from the mount point
	// (e.g. var-lib-iwd.mount).
	Name string

	// Content is the serialized unit file.
	Content []byte
}

// buildMountUnits generates a bind-mount unit for every directory spec.
// Specs sharing a destination produce a single unit; the specs are
// expected in processing order, so the first one wins.
func buildMountUnits(specs []persist.DirectorySpec) ([]mountUnit, error) {
	seen := map[string]bool{}
	units := make([]mountUnit, 0, len(specs))

	for _, spec := range specs {
		dest := spec.Destination()
		if seen[dest] {
			continue
		}

		seen[dest] = true

		opts := []*unit.UnitOption{
			unit.NewUnitOption("Unit", "Description", "Bind mount "+dest),
			unit.NewUnitOption("Unit", "ConditionPathExists", spec.Source()),
			unit.NewUnitOption("Mount", "What", spec.Source()),
			unit.NewUnitOption("Mount", "Where", dest),
			unit.NewUnitOption("Mount", "Type", "none"),
			unit.NewUnitOption("Mount", "Options", "bind"),
			unit.NewUnitOption("Install", "WantedBy", "local-fs.target"),
		}

		content, err := io.ReadAll(unit.Serialize(opts))
		if err != nil {
			return nil, fmt.Errorf("serializing unit for %s: %w", dest, err)
		}

		units = append(units, mountUnit{
			Name:    unit.UnitNamePathEscape(dest) + ".mount",
			Content: content,
		})
	}

	return units, nil
}
