package dispatch

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/vk/scengridgo/internal/plan"
)

// Summary aggregates the outcome of one dispatch run, in plan order.
type Summary struct {
	Units []*plan.RunUnit
}

// Count returns the number of units that ended in the given state.
func (s *Summary) Count(state plan.State) int {
	n := 0
	for _, u := range s.Units {
		if u.State == state {
			n++
		}
	}
	return n
}

// Failed returns the units that ended failed, in plan order.
func (s *Summary) Failed() []*plan.RunUnit {
	var failed []*plan.RunUnit
	for _, u := range s.Units {
		if u.State == plan.StateFailed {
			failed = append(failed, u)
		}
	}
	return failed
}

// OK reports whether every unit succeeded or was skipped.
func (s *Summary) OK() bool {
	return s.Count(plan.StateFailed) == 0
}

// String renders the run table shown at the end of an invocation.
func (s *Summary) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tSTATE\tDURATION\tDETAIL")
	for _, u := range s.Units {
		detail := u.Reason
		if u.Err != nil {
			detail = u.Err.Error()
		} else if u.JobID != "" {
			detail = "job " + u.JobID
		}
		duration := ""
		if u.Duration > 0 {
			duration = u.Duration.Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID(), u.State, duration, detail)
	}
	w.Flush()
	fmt.Fprintf(&b, "\n%d succeeded, %d failed, %d skipped",
		s.Count(plan.StateSucceeded), s.Count(plan.StateFailed), s.Count(plan.StateSkipped))
	return b.String()
}
