package project

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/scenario"
	"github.com/vk/scengridgo/internal/schema"
)

var queueSystems = map[string]bool{"slurm": true, "pbs": true, "lsf": true}

// Load parses and validates the project file at path. Relative paths in the
// project block are resolved against the file's directory.
func Load(ctx context.Context, path string) (*Project, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading project file...", "path", path)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse project file %s: %w", path, diags)
	}

	var pf schema.ProjectFile
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &pf); diags.HasErrors() {
		return nil, fmt.Errorf("decode project file %s: %w", path, diags)
	}

	if pf.Project == nil {
		return nil, fmt.Errorf("project file %s declares no project block", path)
	}

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}

	p := &Project{
		Name:           pf.Project.Name,
		Dir:            dir,
		ScenarioFile:   resolvePath(dir, pf.Project.ScenarioFile),
		DeltaDir:       resolvePath(dir, pf.Project.DeltaDir),
		ReferenceDir:   resolvePath(dir, pf.Project.ReferenceDir),
		Workspace:      resolvePath(dir, pf.Project.Workspace),
		ReferenceFiles: pf.Project.ReferenceFiles,
		Groups:         make(map[string][]string, len(pf.Groups)),
	}
	for _, field := range []struct{ name, value string }{
		{"scenario_file", pf.Project.ScenarioFile},
		{"delta_dir", pf.Project.DeltaDir},
		{"reference_dir", pf.Project.ReferenceDir},
		{"workspace", pf.Project.Workspace},
	} {
		if field.value == "" {
			return nil, fmt.Errorf("project %q: %s must not be empty", p.Name, field.name)
		}
	}

	for _, g := range pf.Groups {
		if _, dup := p.Groups[g.Name]; dup {
			return nil, fmt.Errorf("project %q: duplicate group %q", p.Name, g.Name)
		}
		p.Groups[g.Name] = g.Members
		p.GroupOrder = append(p.GroupOrder, g.Name)
	}

	seen := make(map[string]bool, len(pf.Steps))
	for _, s := range pf.Steps {
		if seen[s.Name] {
			return nil, fmt.Errorf("project %q: duplicate step %q", p.Name, s.Name)
		}
		seen[s.Name] = true

		step, err := buildStep(s, p.Groups)
		if err != nil {
			return nil, fmt.Errorf("project %q: %w", p.Name, err)
		}
		p.Steps = append(p.Steps, step)
	}

	if pf.Queue != nil {
		if pf.Queue.System != "" && !queueSystems[pf.Queue.System] {
			return nil, fmt.Errorf("project %q: unknown queue system %q (want slurm, pbs, or lsf)", p.Name, pf.Queue.System)
		}
		p.Queue = &Queue{
			System:          pf.Queue.System,
			QueueName:       pf.Queue.QueueName,
			WalltimeMinutes: pf.Queue.WalltimeMinutes,
			SubmitTemplate:  pf.Queue.SubmitTemplate,
			PollTemplate:    pf.Queue.PollTemplate,
			CancelTemplate:  pf.Queue.CancelTemplate,
		}
	}

	logger.Info("Project loaded successfully.",
		"project", p.Name,
		"steps", len(p.Steps),
		"groups", len(p.Groups))
	return p, nil
}

func buildStep(s *schema.Step, groups map[string][]string) (*Step, error) {
	step := &Step{
		ActionType: s.ActionType,
		Name:       s.Name,
		DependsOn:  s.DependsOn,
		Groups:     s.Groups,
		RunDefault: true,
	}
	if s.RunDefault != nil {
		step.RunDefault = *s.RunDefault
	}
	if s.Arguments != nil {
		step.Arguments = s.Arguments.Body
	}

	for _, groupName := range s.Groups {
		if _, ok := groups[groupName]; !ok {
			return nil, fmt.Errorf("step %q references unknown group %q", s.Name, groupName)
		}
	}

	for _, raw := range s.ScenarioTypes {
		t, err := scenario.ParseType(raw)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", s.Name, err)
		}
		step.ScenarioTypes = append(step.ScenarioTypes, t)
	}

	return step, nil
}

func resolvePath(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
