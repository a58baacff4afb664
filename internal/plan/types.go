// Package plan expands project step declarations into per-scenario DAGs and
// computes the ordered list of run units a request selects.
package plan

import (
	"time"

	"github.com/vk/scengridgo/internal/delta"
	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/scenario"
)

// State is the lifecycle of one run unit.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// RunUnit pairs one scenario with one step. The planner emits units in
// dispatch order; the dispatcher fills in the outcome fields.
type RunUnit struct {
	Scenario    *scenario.Scenario
	Step        *project.Step
	Config      *delta.ConcreteConfig
	Fingerprint string

	State  State
	Reason string // why the unit was skipped

	ExitCode int
	JobID    string
	Duration time.Duration
	Err      error
}

// ID names the unit in logs and summaries.
func (u *RunUnit) ID() string { return u.Scenario.Name + "/" + u.Step.Name }

// Request is the caller's selection, carried from the CLI surface.
type Request struct {
	// Scenarios restricts the plan to the named scenarios. ScenariosSet
	// distinguishes an explicitly empty set (plan nothing, no error) from an
	// omitted one (plan all active scenarios).
	Scenarios    []string
	ScenariosSet bool

	// Steps restricts the plan to the named steps plus their unmet
	// transitive dependencies. Empty means every run-by-default step.
	Steps []string

	// Force reruns ledger-satisfied units and admits explicitly named
	// inactive scenarios.
	Force bool
}

// LedgerReader is the planner's view of the run ledger.
type LedgerReader interface {
	// SucceededFingerprint returns the fingerprint recorded for the last
	// successful run of (scenario, step), if any.
	SucceededFingerprint(scenario, step string) (string, bool)
}
