package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// ErrSilentExit signals a non-zero exit without printing an error message;
// the command has already produced whatever output it wanted.
var ErrSilentExit = errors.New("silent exit")

// Command is one subcommand of the bindprep CLI.
type Command struct {
	// Flags holds the command's flag set. Parsed before Exec runs.
	Flags *flag.FlagSet

	// Usage is the one-line invocation synopsis; the first word is the
	// command name.
	Usage string

	// Short is the one-line description shown in the command list.
	Short string

	// Long is the full description shown by --help.
	Long string

	// Aliases are alternative names that dispatch to this command.
	Aliases []string

	// Exec runs the command with already-parsed flags and remaining args.
	Exec func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error
}

// Name returns the command name (the first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine renders the command's entry for the top-level usage listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-8s %s", c.Name(), c.Short)
}

// Run parses flags, executes the command, prints errors, and returns the
// process exit code.
func (c *Command) Run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int {
	if c.Flags != nil {
		c.Flags.Usage = func() {}
		c.Flags.SetOutput(&strings.Builder{})

		err := c.Flags.Parse(args)
		if err != nil {
			fprintError(stderr, err)
			c.printHelp(stderr)

			return 1
		}

		if help, _ := c.Flags.GetBool("help"); help {
			c.printHelp(stdout)

			return 0
		}

		args = c.Flags.Args()
	}

	err := c.Exec(ctx, stdin, stdout, stderr, args)
	if err == nil {
		return 0
	}

	if errors.Is(err, ErrSilentExit) {
		return 1
	}

	fprintError(stderr, err)

	return 1
}

func (c *Command) printHelp(output io.Writer) {
	fprintln(output, "Usage: bindprep "+c.Usage)

	if c.Long != "" {
		fprintln(output)
		fprintln(output, c.Long)
	}

	if c.Flags != nil && c.Flags.HasFlags() {
		fprintln(output)
		fprintln(output, "Flags:")
		fprintln(output, strings.TrimRight(c.Flags.FlagUsages(), "\n"))
	}
}
