// Package project loads a project file: step declarations, scenario groups,
// queue overrides, and the filesystem layout of one modeling project.
package project

import (
	"github.com/hashicorp/hcl/v2"

	"github.com/vk/scengridgo/internal/scenario"
)

// Step is the format-agnostic representation of a `step "action" "name"`
// block, in declaration order within Project.Steps.
type Step struct {
	ActionType    string
	Name          string
	Arguments     hcl.Body // nil when the step has no arguments block
	DependsOn     []string
	Groups        []string
	ScenarioTypes []scenario.Type
	RunDefault    bool
}

// AppliesTo reports whether the step's applicability predicate matches a
// scenario: its group filter (membership in any named group) and its type
// filter must both pass, and an empty filter matches everything.
func (s *Step) AppliesTo(sc *scenario.Scenario, groups map[string][]string) bool {
	if len(s.Groups) > 0 {
		member := false
		for _, groupName := range s.Groups {
			for _, m := range groups[groupName] {
				if m == sc.Name {
					member = true
					break
				}
			}
			if member {
				break
			}
		}
		if !member {
			return false
		}
	}

	if len(s.ScenarioTypes) > 0 {
		match := false
		for _, t := range s.ScenarioTypes {
			if t == sc.Type {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}

	return true
}

// Queue carries the project's batch-queue overrides.
type Queue struct {
	System          string
	QueueName       string
	WalltimeMinutes int
	SubmitTemplate  string
	PollTemplate    string
	CancelTemplate  string
}

// Project is the loaded, validated project definition. Paths are absolute.
type Project struct {
	Name           string
	Dir            string // directory of the project file
	ScenarioFile   string
	DeltaDir       string
	ReferenceDir   string
	Workspace      string
	ReferenceFiles []string

	GroupOrder []string
	Groups     map[string][]string // group name to ordered member scenarios

	Steps []*Step // declaration order
	Queue *Queue  // nil when the project declares no queue block
}

// Step looks up a step declaration by name.
func (p *Project) Step(name string) (*Step, bool) {
	for _, s := range p.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// StepNames returns the declared step names in declaration order.
func (p *Project) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}
