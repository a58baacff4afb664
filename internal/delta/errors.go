package delta

import (
	"errors"
	"fmt"
)

// ErrConfig is the root of all configuration-delta failures. Typed errors
// in this package unwrap to it.
var ErrConfig = errors.New("invalid scenario configuration")

// ErrNotFound is returned by a Source when a scenario declares no delta
// set. Materialize tolerates it for structural ancestors only.
var ErrNotFound = errors.New("delta set not found")

// ConfigError wraps malformed delta content and edit application failures.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "invalid scenario configuration: " + e.Msg }
func (e *ConfigError) Unwrap() error { return ErrConfig }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// MissingDeltaSourceError reports an ancestor that has no delta set but is
// not purely structural, so the chain cannot be materialized.
type MissingDeltaSourceError struct {
	Scenario string // the scenario being materialized
	Ancestor string // the chain member with no delta source
}

func (e *MissingDeltaSourceError) Error() string {
	if e.Scenario == e.Ancestor {
		return fmt.Sprintf("invalid scenario configuration: scenario %q has no delta source", e.Scenario)
	}
	return fmt.Sprintf("invalid scenario configuration: ancestor %q of scenario %q has no delta source",
		e.Ancestor, e.Scenario)
}
func (e *MissingDeltaSourceError) Unwrap() error { return ErrConfig }
