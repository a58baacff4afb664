package registry

import (
	"io"

	"github.com/vk/scengridgo/internal/delta"
	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/scenario"
	"github.com/vk/scengridgo/internal/workspace"
)

// RunContext carries everything a running action may need about its unit:
// the scenario, its materialized configuration, the project, and the sandbox
// it owns. Log is the unit's log sink; actions stream subprocess output and
// progress there, not to the process streams.
type RunContext struct {
	Scenario *scenario.Scenario
	Step     string
	Config   *delta.ConcreteConfig
	Project  *project.Project
	Sandbox  workspace.Sandbox
	RunID    string
	Log      io.Writer
}

// Outcome is what an action reports on success. A nil Outcome means a plain
// success with exit code 0.
type Outcome struct {
	ExitCode int
	Detail   string
}
