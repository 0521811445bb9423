package main

import (
	"context"
	"io"

	flag "github.com/spf13/pflag"
)

// PlanCmd creates the plan command. It prints the directories that would
// be created, in processing order, without touching the filesystem.
func PlanCmd(cfg *Config, cfgErr error) *Command {
	flags := flag.NewFlagSet("plan", flag.ContinueOnError)
	flags.BoolP("help", "h", false, "Show help")
	flags.Bool("debug", false, "Show config resolution and ordering details")

	return &Command{
		Flags:   flags,
		Usage:   "plan [flags]",
		Short:   "Show directories in processing order",
		Long:    "Resolve the configured directories and print one create invocation\nper directory, in the order apply would execute them.\nMakes no filesystem changes.",
		Aliases: []string{},
		Exec: func(_ context.Context, _ io.Reader, stdout, stderr io.Writer, _ []string) error {
			if cfgErr != nil {
				return cfgErr
			}

			var debug *DebugLogger
			if enabled, _ := flags.GetBool("debug"); enabled {
				debug = NewDebugLogger(stderr)
			} else {
				debug = NewDebugLogger(nil)
			}

			specs, err := buildSpecs(cfg, debug)
			if err != nil {
				return reportSpecError(stderr, err)
			}

			for _, spec := range specs {
				fprintln(stdout, planLine(spec))
			}

			return nil
		},
	}
}
