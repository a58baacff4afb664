// Package schema declares the HCL shapes of a project file. Decoding stops
// at hcl.Body for step arguments: they are evaluated per run unit against
// that unit's scenario variables.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// Project carries project identity and the paths the engine works in. All
// relative paths resolve against the project file's directory.
type Project struct {
	Name           string   `hcl:"name,label"`
	ScenarioFile   string   `hcl:"scenario_file"`
	DeltaDir       string   `hcl:"delta_dir"`
	ReferenceDir   string   `hcl:"reference_dir"`
	Workspace      string   `hcl:"workspace"`
	ReferenceFiles []string `hcl:"reference_files,optional"`
}

// Group names an ordered set of scenarios used to scope step applicability.
type Group struct {
	Name    string   `hcl:"name,label"`
	Members []string `hcl:"members"`
}

// StepArgs defers decoding of the 'arguments' block body until execution,
// when the per-unit evaluation context exists.
type StepArgs struct {
	Body hcl.Body `hcl:",remain"`
}

// Step is a `step "action" "name"` block. The first label selects the
// registered action handler, the second is the unique step name.
type Step struct {
	ActionType    string    `hcl:"action_type,label"`
	Name          string    `hcl:"step_name,label"`
	Arguments     *StepArgs `hcl:"arguments,block"`
	DependsOn     []string  `hcl:"depends_on,optional"`
	Groups        []string  `hcl:"groups,optional"`
	ScenarioTypes []string  `hcl:"scenario_types,optional"`
	RunDefault    *bool     `hcl:"run_default,optional"` // unset means true
}

// Queue overrides the batch-queue defaults for this project.
type Queue struct {
	System          string `hcl:"system,optional"` // slurm, pbs, or lsf
	QueueName       string `hcl:"queue_name,optional"`
	WalltimeMinutes int    `hcl:"walltime_minutes,optional"`
	SubmitTemplate  string `hcl:"submit,optional"`
	PollTemplate    string `hcl:"poll,optional"`
	CancelTemplate  string `hcl:"cancel,optional"`
}

// ProjectFile is the top-level structure of a project file. There is no
// catch-all remain body: an unknown top-level block is a decode error, not
// silently ignored configuration.
type ProjectFile struct {
	Project *Project `hcl:"project,block"`
	Groups  []*Group `hcl:"group,block"`
	Steps   []*Step  `hcl:"step,block"`
	Queue   *Queue   `hcl:"queue,block"`
}
