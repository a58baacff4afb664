package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/scengridgo/internal/app"
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

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("scengrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
scengrid - scenario-driven simulation workflow orchestrator.

Usage:
  scengrid [options] [PROJECT_FILE]

Arguments:
  PROJECT_FILE
    Path to the project .hcl file (equivalent to -p).

Options:
`)
		flagSet.PrintDefaults()
	}

	projectFlag := flagSet.String("project", "", "Path to the project file.")
	pFlag := flagSet.String("p", "", "Path to the project file (shorthand).")
	scenariosFlag := flagSet.String("S", "", "Comma-separated scenario names to run. An explicitly empty list plans nothing.")
	stepsFlag := flagSet.String("s", "", "Comma-separated step names to run, plus their unmet dependencies.")
	groupFlag := flagSet.String("g", "", "Restrict the run to the members of one scenario group.")
	modeFlag := flagSet.String("mode", "", "Dispatch mode: 'local' or 'cluster'.")
	forceFlag := flagSet.Bool("f", false, "Force: rerun units the ledger already records as succeeded.")
	continueFlag := flagSet.Bool("k", false, "Keep going: continue a scenario's independent units after a failure.")
	dryRunFlag := flagSet.Bool("n", false, "Dry run: print the plan and exit without executing.")
	workersFlag := flagSet.Int("workers", 0, "Number of concurrent workers for local dispatch.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP status server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	settingsFlag := flagSet.String("settings", "", "Path to the settings file. Defaults to ~/.scengrid.yaml when present.")
	ledgerFlag := flagSet.String("ledger", "", "Path to the run ledger. Defaults to <workspace>/.scengrid/ledger.json.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	scenariosSet := false
	flagSet.Visit(func(f *flag.Flag) {
		if f.Name == "S" {
			scenariosSet = true
		}
	})

	path := ""
	if *projectFlag != "" {
		path = *projectFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Project path determined.", "path", path)

	if path == "" {
		slog.Debug("No project path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	switch logFormat {
	case "", "text", "json":
		// valid, empty falls back to the settings file
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "", "debug", "info", "warn", "error":
		// valid, empty falls back to the settings file
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ProjectPath:     path,
		Scenarios:       splitList(*scenariosFlag),
		ScenariosSet:    scenariosSet,
		Steps:           splitList(*stepsFlag),
		Group:           *groupFlag,
		Mode:            strings.ToLower(*modeFlag),
		Force:           *forceFlag,
		ContinueOnError: *continueFlag,
		DryRun:          *dryRunFlag,
		Workers:         *workersFlag,
		StatusPort:      *statusPortFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		SettingsPath:    *settingsFlag,
		LedgerPath:      *ledgerFlag,
	})

	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

// splitList breaks a comma-separated flag value into names, dropping empty
// elements so `-S ""` yields an empty list rather than [""].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
