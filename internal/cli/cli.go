// Package cli parses command-line arguments into an app configuration.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/qtmlab/sweeprig/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("sweeprig", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
sweeprig - laboratory sweep/measurement orchestration.

Usage:
  sweeprig [options] [RIG_PATH]

Arguments:
  RIG_PATH
    Path to a single .hcl rig file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	rigFlag := flagSet.String("rig", "", "Path to the rig file or directory.")
	rFlag := flagSet.String("r", "", "Path to the rig file or directory (shorthand).")
	sampleFlag := flagSet.String("sample", "", "Override the rig's sample identifier (YYYY-MM-DD_<name>).")
	dataDirFlag := flagSet.String("data-dir", "", "Override the rig's base data directory.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Replace every driver with the simulator; no instrument I/O.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *rigFlag != "" {
		path = *rigFlag
	} else if *rFlag != "" {
		path = *rFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		RigPath:   path,
		Sample:    *sampleFlag,
		DataDir:   *dataDirFlag,
		DryRun:    *dryRunFlag,
		LogFormat: logFormat,
		LogLevel:  logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
