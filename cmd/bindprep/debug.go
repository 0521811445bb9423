package main

import (
	"fmt"
	"io"

	"bindprep/persist"
)

// DebugLogger provides structured debug output for directory preparation.
// It is disabled by default (when output is nil) and outputs to stderr when enabled.
type DebugLogger struct {
	output io.Writer
}

// NewDebugLogger creates a new debug logger.
// If output is nil, the logger is disabled and all methods are no-ops.
func NewDebugLogger(output io.Writer) *DebugLogger {
	return &DebugLogger{output: output}
}

// Enabled returns true if debug logging is enabled.
func (d *DebugLogger) Enabled() bool {
	return d.output != nil
}

// Section outputs a section header.
func (d *DebugLogger) Section(name string) {
	if d.output == nil {
		return
	}

	_, _ = fmt.Fprintf(d.output, "\n=== %s ===\n", name)
}

// Logf outputs a formatted debug message.
func (d *DebugLogger) Logf(format string, args ...any) {
	if d.output == nil {
		return
	}

	_, _ = fmt.Fprintf(d.output, format+"\n", args...)
}

// Bulletf outputs an indented bullet point item.
func (d *DebugLogger) Bulletf(format string, args ...any) {
	if d.output == nil {
		return
	}

	_, _ = fmt.Fprintf(d.output, "  • "+format+"\n", args...)
}

// Spec outputs one directory spec with its resolved endpoints.
func (d *DebugLogger) Spec(spec persist.DirectorySpec) {
	if d.output == nil {
		return
	}

	kind := "explicit"
	if spec.Implicit {
		kind = "implicit"
	}

	attrs := ""
	if spec.User != "" || spec.Group != "" || spec.Mode != "" {
		attrs = fmt.Sprintf(" [user=%s group=%s mode=%s]", orDash(spec.User), orDash(spec.Group), orDash(spec.Mode))
	}

	_, _ = fmt.Fprintf(d.output, "  %s -> %s (%s)%s\n", spec.Source(), spec.Destination(), kind, attrs)
}

// ConfigFile outputs information about a config file.
func (d *DebugLogger) ConfigFile(label, path string, loaded bool) {
	if d.output == nil {
		return
	}

	if loaded {
		_, _ = fmt.Fprintf(d.output, "  %s: %s\n", label, path)
	} else {
		_, _ = fmt.Fprintf(d.output, "  %s: (not found)\n", label)
	}
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}

	return value
}

// debugConfigLoading outputs debug information about config file loading.
func debugConfigLoading(debug *DebugLogger, cfg *Config) {
	if !debug.Enabled() {
		return
	}

	debug.Section("Config Loading")

	if len(cfg.LoadedConfigFiles) == 0 {
		debug.Logf("  No config files loaded (using defaults)")

		return
	}

	if path, ok := cfg.LoadedConfigFiles["global"]; ok {
		debug.ConfigFile("Global config", path, true)
	} else {
		debug.ConfigFile("Global config", "", false)
	}

	if path, ok := cfg.LoadedConfigFiles["explicit"]; ok {
		debug.ConfigFile("Explicit config (--config)", path, true)
	} else if path, ok := cfg.LoadedConfigFiles["project"]; ok {
		debug.ConfigFile("Project config", path, true)
	} else {
		debug.ConfigFile("Project config", "", false)
	}
}

// debugSpecs outputs the flattened directory specs in processing order.
func debugSpecs(debug *DebugLogger, label string, specs []persist.DirectorySpec) {
	if !debug.Enabled() {
		return
	}

	debug.Section(label)

	if len(specs) == 0 {
		debug.Logf("  No directories declared")

		return
	}

	for _, spec := range specs {
		debug.Spec(spec)
	}
}
