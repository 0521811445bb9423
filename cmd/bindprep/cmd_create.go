package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	flag "github.com/spf13/pflag"

	"bindprep/persist"
)

const createArgCount = 10

// CreateCmd creates the create command: a self-contained, scriptable
// materializer for a single directory. It reads no config file, so it
// can run from a systemd unit or an initrd before any config exists.
// Every argument is positional; "-" selects the default.
func CreateCmd() *Command {
	flags := flag.NewFlagSet("create", flag.ContinueOnError)
	flags.BoolP("help", "h", false, "Show help")

	return &Command{
		Flags: flags,
		Usage: "create <storage-path> <root> <relative-path> <source> <destination> <user> <group> <mode> <implicit> <debug>",
		Short: "Create a single directory pair",
		Long: `Create one directory on both the persistent storage side and the
ephemeral root, without reading any config file.

Arguments (pass "-" to use the default):
  storage-path   persistent storage base, e.g. /persist
  root           ephemeral root the directory is bound into ("-" = /)
  relative-path  path below both bases, e.g. /var/lib/iwd
  source         override for the storage-side path ("-" = derive)
  destination    override for the root-side path ("-" = derive)
  user           owning user name or numeric id ("-" = inherit)
  group          owning group name or numeric id ("-" = inherit)
  mode           octal permissions, e.g. 0755 ("-" = inherit)
  implicit       "true" when derived from a persisted file
  debug          "true" to trace each step to stderr`,
		Aliases: []string{},
		Exec: func(_ context.Context, _ io.Reader, _, stderr io.Writer, args []string) error {
			if len(args) != createArgCount {
				return fmt.Errorf("create needs exactly %d arguments, got %d", createArgCount, len(args))
			}

			implicit, err := parseBoolArg("implicit", args[8])
			if err != nil {
				return err
			}

			debug, err := parseBoolArg("debug", args[9])
			if err != nil {
				return err
			}

			root := args[1]
			if root == "-" {
				root = "/"
			}

			spec := persist.DirectorySpec{
				StoragePath:         argOrEmpty(args[0]),
				Root:                root,
				RelativePath:        argOrEmpty(args[2]),
				SourceOverride:      argOrEmpty(args[3]),
				DestinationOverride: argOrEmpty(args[4]),
				User:                argOrEmpty(args[5]),
				Group:               argOrEmpty(args[6]),
				Mode:                argOrEmpty(args[7]),
				Implicit:            implicit,
			}

			m := persist.Materializer{
				Warnf: func(format string, warnArgs ...any) {
					fprintf(stderr, "warning: "+format+"\n", warnArgs...)
				},
			}
			if debug {
				logger := NewDebugLogger(stderr)
				m.Debugf = logger.Logf
			}

			return m.Materialize(spec)
		},
	}
}

func parseBoolArg(name, value string) (bool, error) {
	if value == "-" {
		return false, nil
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("argument %s: %q is not a boolean", name, value)
	}

	return parsed, nil
}

func argOrEmpty(value string) string {
	if value == "-" {
		return ""
	}

	return value
}
