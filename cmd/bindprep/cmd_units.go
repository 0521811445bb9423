package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"
)

// UnitsCmd creates the units command. It renders a systemd .mount unit
// for every configured directory so the actual bind mounts can be
// managed by systemd after apply has prepared both sides.
func UnitsCmd(cfg *Config, cfgErr error) *Command {
	flags := flag.NewFlagSet("units", flag.ContinueOnError)
	flags.BoolP("help", "h", false, "Show help")
	flags.StringP("output", "o", "", "Write unit files into `dir` instead of stdout")

	return &Command{
		Flags:   flags,
		Usage:   "units [flags]",
		Short:   "Generate systemd mount units",
		Long:    "Generate a systemd .mount unit per configured directory, binding the\npersistent storage path onto the ephemeral root. Units print to stdout\nunless --output names a directory to write them into.",
		Aliases: []string{},
		Exec: func(_ context.Context, _ io.Reader, stdout, stderr io.Writer, _ []string) error {
			if cfgErr != nil {
				return cfgErr
			}

			specs, err := buildSpecs(cfg, NewDebugLogger(nil))
			if err != nil {
				return reportSpecError(stderr, err)
			}

			units, err := buildMountUnits(specs)
			if err != nil {
				return err
			}

			outputDir, _ := flags.GetString("output")
			if outputDir == "" {
				for i, u := range units {
					if i > 0 {
						fprintln(stdout)
					}

					fprintf(stdout, "# %s\n", u.Name)
					_, _ = stdout.Write(u.Content)
				}

				return nil
			}

			err = os.MkdirAll(outputDir, 0o755)
			if err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}

			for _, u := range units {
				path := filepath.Join(outputDir, u.Name)

				err := os.WriteFile(path, u.Content, 0o644)
				if err != nil {
					return fmt.Errorf("writing %s: %w", path, err)
				}
			}

			fprintf(stdout, "wrote %d unit(s) to %s\n", len(units), outputDir)

			return nil
		},
	}
}
