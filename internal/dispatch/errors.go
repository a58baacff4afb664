package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExecution is the root of unit-execution failures.
var ErrExecution = errors.New("execution failed")

// RunFailedError reports the units that failed during one Run and the first
// real cause (the cancellation sentinel is skipped when a concrete unit error
// exists).
type RunFailedError struct {
	Failed []string
	Cause  error
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("execution failed for %s: %v", strings.Join(e.Failed, ", "), e.Cause)
}
func (e *RunFailedError) Unwrap() error { return e.Cause }
func (e *RunFailedError) Is(target error) bool { return target == ErrExecution }
