package main

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"bindprep/persist"
)

// buildSpecs turns the loaded config into the ordered list of directory
// specs: flatten, validate, reject recursive persistent paths, then sort
// into dependency order.
func buildSpecs(cfg *Config, debug *DebugLogger) ([]persist.DirectorySpec, error) {
	debugConfigLoading(debug, cfg)

	specs, err := FlattenConfig(cfg)
	if err != nil {
		return nil, err
	}

	var errs []error

	for _, spec := range specs {
		err := spec.Validate()
		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	debugSpecs(debug, "Declared Directories", specs)

	err = persist.CheckRecursivePaths(specs)
	if err != nil {
		return nil, err
	}

	sorted, err := persist.SortSpecs(specs)
	if err != nil {
		return nil, err
	}

	debugSpecs(debug, "Processing Order", sorted)

	return sorted, nil
}

// reportSpecError prints err to the user. Ordering conflicts additionally
// get a bullet per conflicting directory so the offending declarations can
// be found without --debug; the returned [ErrSilentExit] stops the dispatch
// layer from printing the error a second time. Every other error passes
// through unchanged.
func reportSpecError(stderr io.Writer, err error) error {
	var cycleErr *persist.CycleError
	if !errors.As(err, &cycleErr) {
		return err
	}

	fprintError(stderr, err)

	diag := NewDebugLogger(stderr)
	for _, spec := range cycleErr.Specs {
		diag.Bulletf("%s -> %s (user=%s group=%s mode=%s)",
			spec.Source(), spec.Destination(),
			orDash(spec.User), orDash(spec.Group), orDash(spec.Mode))
	}

	return ErrSilentExit
}

// planLine renders one spec as the positional arguments of the create
// command, so plan output can be executed line by line.
func planLine(spec persist.DirectorySpec) string {
	return strings.Join([]string{
		"create",
		spec.StoragePath,
		spec.Root,
		spec.RelativePath,
		orDash(spec.SourceOverride),
		orDash(spec.DestinationOverride),
		orDash(spec.User),
		orDash(spec.Group),
		orDash(spec.Mode),
		strconv.FormatBool(spec.Implicit),
		"false",
	}, " ")
}
