package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// ErrGraph is the root of all scenario-graph validation failures. Every
// typed error in this package unwraps to it, so callers can match the whole
// family with errors.Is(err, scenario.ErrGraph).
var ErrGraph = errors.New("invalid scenario graph")

// GraphError wraps rule violations that have no dedicated type, such as a
// reference scenario declaring a parent.
type GraphError struct {
	Msg string
}

func (e *GraphError) Error() string { return "invalid scenario graph: " + e.Msg }
func (e *GraphError) Unwrap() error { return ErrGraph }

func graphErrorf(format string, args ...any) error {
	return &GraphError{Msg: fmt.Sprintf(format, args...)}
}

// CycleError reports a parent loop. Path holds the scenario names along the
// loop, first repeated last.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "invalid scenario graph: parent cycle: " + strings.Join(e.Path, " -> ")
}
func (e *CycleError) Unwrap() error { return ErrGraph }

// UnknownParentError reports a parent attribute naming a scenario that was
// never declared.
type UnknownParentError struct {
	Scenario string
	Parent   string
}

func (e *UnknownParentError) Error() string {
	return fmt.Sprintf("invalid scenario graph: scenario %q declares unknown parent %q", e.Scenario, e.Parent)
}
func (e *UnknownParentError) Unwrap() error { return ErrGraph }

// DuplicateNameError reports two declarations sharing one name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("invalid scenario graph: duplicate scenario name %q", e.Name)
}
func (e *DuplicateNameError) Unwrap() error { return ErrGraph }
