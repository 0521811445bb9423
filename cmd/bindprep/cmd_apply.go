package main

import (
	"context"
	"io"

	flag "github.com/spf13/pflag"

	"bindprep/persist"
)

// ApplyCmd creates the apply command. It materializes every configured
// directory on the storage and ephemeral sides so bind mounts can be
// established on top.
func ApplyCmd(cfg *Config, cfgErr error) *Command {
	flags := flag.NewFlagSet("apply", flag.ContinueOnError)
	flags.BoolP("help", "h", false, "Show help")
	flags.Bool("debug", false, "Show config resolution and ordering details")
	flags.BoolP("dry-run", "n", false, "Print planned directories instead of creating them")

	return &Command{
		Flags:   flags,
		Usage:   "apply [flags]",
		Short:   "Create the configured directories",
		Long:    "Resolve the configured directories and create every missing one on\nboth the persistent storage side and the ephemeral root, copying\nownership and permissions between the two sides. Idempotent.",
		Aliases: []string{},
		Exec: func(_ context.Context, _ io.Reader, stdout, stderr io.Writer, _ []string) error {
			if cfgErr != nil {
				return cfgErr
			}

			debugEnabled, _ := flags.GetBool("debug")

			var debug *DebugLogger
			if debugEnabled {
				debug = NewDebugLogger(stderr)
			} else {
				debug = NewDebugLogger(nil)
			}

			specs, err := buildSpecs(cfg, debug)
			if err != nil {
				return reportSpecError(stderr, err)
			}

			if dryRun, _ := flags.GetBool("dry-run"); dryRun {
				for _, spec := range specs {
					fprintln(stdout, planLine(spec))
				}

				return nil
			}

			m := persist.Materializer{
				Warnf: func(format string, args ...any) {
					fprintf(stderr, "warning: "+format+"\n", args...)
				},
			}
			if debugEnabled {
				m.Debugf = debug.Logf
			}

			return m.Run(specs)
		},
	}
}
