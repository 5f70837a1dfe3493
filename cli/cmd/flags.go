// Package cmd provides CLI commands for the rulelens binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for inspect trace and inspect metrics.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (inspect trace, inspect metrics only)",
	}

	// ConfigFlag points at a rulelens.yaml. Defaults to ./rulelens.yaml when present.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default ./rulelens.yaml if present)",
		EnvVars: []string{"RULELENS_CONFIG"},
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// executionFlags are shared by run and batch. Each overrides the matching
// config field when set.
func executionFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		FormatFlag,
		NoColorFlag,
		&cli.StringFlag{
			Name:    "mode",
			Aliases: []string{"m"},
			Usage:   "Run mode: explain, verify, tests, diff, agentic, reflect",
			Value:   "agentic",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress result output",
		},
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON run report to this path (- for stderr)",
		},
		// Config overrides
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "cache-backend",
			Usage: "Cache backend: resp, redis, local, none",
		},
		&cli.StringFlag{
			Name:  "cache-addr",
			Usage: "host:port of the RESP cache store",
		},
		&cli.StringFlag{
			Name:  "cache-url",
			Usage: "redis:// URL for the redis cache backend",
		},
		&cli.StringFlag{
			Name:  "provider",
			Usage: "Text-generation provider: ollama, mock",
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "Model name for the provider",
		},
		&cli.StringFlag{
			Name:  "planner",
			Usage: "Planner: mode (fixed table) or model (asks the model in agentic mode)",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Bound for each collaborator call (0 = unbounded)",
		},
		&cli.StringFlag{
			Name:  "kb-dir",
			Usage: "Knowledge-base directory for context retrieval",
		},
		&cli.StringFlag{
			Name:  "memory-dir",
			Usage: "Directory holding profile, mappings and memory file",
		},
		&cli.StringFlag{
			Name:  "trace-dir",
			Usage: "Directory for run_<id>.json trace files",
		},
		&cli.BoolFlag{
			Name:  "no-trace",
			Usage: "Do not persist run traces",
		},
		&cli.StringFlag{
			Name:  "lode-path",
			Usage: "Lode trace dataset path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "lode-backend",
			Usage: "Lode storage backend: fs or s3",
		},
	}
}

// traceSourceFlags select where inspect reads traces from.
func traceSourceFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:  "trace-dir",
			Usage: "Directory holding run_<id>.json trace files",
		},
		&cli.StringFlag{
			Name:  "lode-path",
			Usage: "Read from the Lode dataset at this path instead of trace files",
		},
		&cli.StringFlag{
			Name:  "lode-backend",
			Usage: "Lode storage backend: fs or s3",
		},
	}
}
