package app

import (
	"errors"
	"fmt"
)

// Execution modes.
const (
	ModeLocal   = "local"
	ModeCluster = "cluster"
)

const defaultWorkers = 4

// Config holds all the necessary configuration for an App instance to run.
// Zero values mean "not set on the command line" and are filled from the
// settings file, then from built-in defaults, in applySettings.
type Config struct {
	ProjectPath string // project .hcl file

	// Unit selection.
	Scenarios    []string
	ScenariosSet bool // distinguishes -S "" (plan nothing) from no -S (all active)
	Steps        []string
	Group        string

	Mode            string
	Force           bool
	ContinueOnError bool
	DryRun          bool

	Workers    int
	StatusPort int
	LogFormat  string
	LogLevel   string

	SettingsPath string // settings file; empty means ~/.scengrid.yaml if present
	LedgerPath   string // empty means <workspace>/.scengrid/ledger.json
}

// NewConfig validates a Config assembled by an entrypoint.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ProjectPath == "" {
		return nil, errors.New("a project file is required and cannot be empty")
	}
	if cfg.Mode != "" && cfg.Mode != ModeLocal && cfg.Mode != ModeCluster {
		return nil, fmt.Errorf("invalid mode %q: must be %q or %q", cfg.Mode, ModeLocal, ModeCluster)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.ScenariosSet && cfg.Group != "" {
		return nil, errors.New("choose scenarios with -S or a group with -g, not both")
	}
	return &cfg, nil
}

// applySettings fills unset fields from the settings file, then from
// built-in defaults. Command-line values always win.
func (c *Config) applySettings(s *Settings) {
	if c.Mode == "" {
		c.Mode = s.Mode
	}
	if c.Mode == "" {
		c.Mode = ModeLocal
	}
	if c.Workers == 0 {
		c.Workers = s.Workers
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.StatusPort == 0 {
		c.StatusPort = s.StatusPort
	}
	if c.LogLevel == "" {
		c.LogLevel = s.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = s.LogFormat
	}
}
