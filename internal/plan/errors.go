package plan

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGraph is the root of step-graph construction failures.
var ErrGraph = errors.New("invalid step graph")

// ErrPlanning is the root of run-selection failures.
var ErrPlanning = errors.New("invalid run selection")

// CycleError reports a dependency loop among a scenario's steps. Path holds
// the step names along the loop, first repeated last.
type CycleError struct {
	Scenario string
	Path     []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("invalid step graph: scenario %q: dependency cycle: %s",
		e.Scenario, strings.Join(e.Path, " -> "))
}
func (e *CycleError) Unwrap() error { return ErrGraph }

// UnknownStepReferenceError reports a depends_on entry naming a step that is
// not present after applicability filtering. Dropping the edge instead would
// silently change run semantics, so this is a hard error.
type UnknownStepReferenceError struct {
	Scenario string
	Step     string
	Ref      string
}

func (e *UnknownStepReferenceError) Error() string {
	return fmt.Sprintf("invalid step graph: scenario %q: step %q depends on %q, which does not exist for this scenario",
		e.Scenario, e.Step, e.Ref)
}
func (e *UnknownStepReferenceError) Unwrap() error { return ErrGraph }

// NoMatchingStepsError reports a selection that produced no run units at
// all, which usually means a typo in the requested scenario or step names.
type NoMatchingStepsError struct {
	Scenarios []string
	Steps     []string
}

func (e *NoMatchingStepsError) Error() string {
	var parts []string
	if len(e.Scenarios) > 0 {
		parts = append(parts, fmt.Sprintf("scenarios [%s]", strings.Join(e.Scenarios, ", ")))
	}
	if len(e.Steps) > 0 {
		parts = append(parts, fmt.Sprintf("steps [%s]", strings.Join(e.Steps, ", ")))
	}
	if len(parts) == 0 {
		return "invalid run selection: no runnable units matched the request"
	}
	return "invalid run selection: no runnable units matched " + strings.Join(parts, " and ")
}
func (e *NoMatchingStepsError) Unwrap() error { return ErrPlanning }
