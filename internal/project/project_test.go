package project

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scengridgo/internal/scenario"
)

const sampleProject = `
project "paper1" {
  scenario_file = "etc/scenarios.xml"
  delta_dir     = "etc/deltas"
  reference_dir = "/opt/model/reference"
  workspace     = "ws"

  reference_files = ["input/config.xml", "input/energy.xml"]
}

group "corn" {
  members = ["base", "corn-15", "corn-20"]
}

step "setup" "setup" {
  depends_on  = []
  run_default = true
}

step "model" "gcam" {
  arguments {
    config = "config.xml"
  }
  depends_on = ["setup"]
}

step "query" "batch-queries" {
  depends_on     = ["gcam"]
  groups         = ["corn"]
  scenario_types = ["baseline", "derived"]
  run_default    = false
}

queue {
  system           = "slurm"
  queue_name       = "shared"
  walltime_minutes = 120
}
`

func writeProject(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "project.hcl")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("full project file", func(t *testing.T) {
		path := writeProject(t, sampleProject)
		p, err := Load(ctx, path)
		require.NoError(t, err)

		assert.Equal(t, "paper1", p.Name)

		dir := filepath.Dir(path)
		assert.Equal(t, filepath.Join(dir, "etc/scenarios.xml"), p.ScenarioFile)
		assert.Equal(t, filepath.Join(dir, "etc/deltas"), p.DeltaDir)
		assert.Equal(t, "/opt/model/reference", p.ReferenceDir, "absolute paths stay untouched")
		assert.Equal(t, filepath.Join(dir, "ws"), p.Workspace)
		assert.Equal(t, []string{"input/config.xml", "input/energy.xml"}, p.ReferenceFiles)

		assert.Equal(t, []string{"corn"}, p.GroupOrder)
		assert.Equal(t, []string{"base", "corn-15", "corn-20"}, p.Groups["corn"])

		require.Equal(t, []string{"setup", "gcam", "batch-queries"}, p.StepNames())

		setup, ok := p.Step("setup")
		require.True(t, ok)
		assert.Equal(t, "setup", setup.ActionType)
		assert.True(t, setup.RunDefault)
		assert.Nil(t, setup.Arguments)

		gcam, ok := p.Step("gcam")
		require.True(t, ok)
		assert.Equal(t, "model", gcam.ActionType)
		assert.Equal(t, []string{"setup"}, gcam.DependsOn)
		assert.True(t, gcam.RunDefault, "run_default defaults to true")
		assert.NotNil(t, gcam.Arguments)

		queries, ok := p.Step("batch-queries")
		require.True(t, ok)
		assert.False(t, queries.RunDefault)
		assert.Equal(t, []string{"corn"}, queries.Groups)
		assert.Equal(t, []scenario.Type{scenario.TypeBaseline, scenario.TypeDerived}, queries.ScenarioTypes)

		require.NotNil(t, p.Queue)
		assert.Equal(t, "slurm", p.Queue.System)
		assert.Equal(t, "shared", p.Queue.QueueName)
		assert.Equal(t, 120, p.Queue.WalltimeMinutes)
	})

	t.Run("missing project block", func(t *testing.T) {
		path := writeProject(t, `step "model" "gcam" {}`)
		_, err := Load(ctx, path)
		assert.ErrorContains(t, err, "declares no project block")
	})

	t.Run("duplicate step name", func(t *testing.T) {
		path := writeProject(t, `
project "x" {
  scenario_file = "s.xml"
  delta_dir     = "deltas"
  reference_dir = "ref"
  workspace     = "ws"
}
step "model" "gcam" {}
step "query" "gcam" {}
`)
		_, err := Load(ctx, path)
		assert.ErrorContains(t, err, `duplicate step "gcam"`)
	})

	t.Run("step referencing unknown group", func(t *testing.T) {
		path := writeProject(t, `
project "x" {
  scenario_file = "s.xml"
  delta_dir     = "deltas"
  reference_dir = "ref"
  workspace     = "ws"
}
step "model" "gcam" {
  groups = ["nope"]
}
`)
		_, err := Load(ctx, path)
		assert.ErrorContains(t, err, `references unknown group "nope"`)
	})

	t.Run("bad scenario type filter", func(t *testing.T) {
		path := writeProject(t, `
project "x" {
  scenario_file = "s.xml"
  delta_dir     = "deltas"
  reference_dir = "ref"
  workspace     = "ws"
}
step "model" "gcam" {
  scenario_types = ["experimental"]
}
`)
		_, err := Load(ctx, path)
		assert.ErrorContains(t, err, "unknown scenario type")
	})

	t.Run("unknown queue system", func(t *testing.T) {
		path := writeProject(t, `
project "x" {
  scenario_file = "s.xml"
  delta_dir     = "deltas"
  reference_dir = "ref"
  workspace     = "ws"
}
queue {
  system = "condor"
}
`)
		_, err := Load(ctx, path)
		assert.ErrorContains(t, err, `unknown queue system "condor"`)
	})

	t.Run("missing required project attribute", func(t *testing.T) {
		path := writeProject(t, `
project "x" {
  scenario_file = "s.xml"
  delta_dir     = "deltas"
  reference_dir = "ref"
}
`)
		_, err := Load(ctx, path)
		require.Error(t, err)
		assert.ErrorContains(t, err, "workspace")
	})

	t.Run("malformed hcl", func(t *testing.T) {
		path := writeProject(t, `project "x" {`)
		_, err := Load(ctx, path)
		assert.ErrorContains(t, err, "parse project file")
	})
}

func TestStepAppliesTo(t *testing.T) {
	groups := map[string][]string{
		"corn": {"base", "corn-15"},
		"cell": {"cell-10"},
	}
	base := &scenario.Scenario{Name: "base", Type: scenario.TypeBaseline}
	corn := &scenario.Scenario{Name: "corn-15", Type: scenario.TypeDerived}
	other := &scenario.Scenario{Name: "other", Type: scenario.TypeDerived}

	t.Run("no filters match everything", func(t *testing.T) {
		s := &Step{Name: "any"}
		assert.True(t, s.AppliesTo(base, groups))
		assert.True(t, s.AppliesTo(other, groups))
	})

	t.Run("group filter", func(t *testing.T) {
		s := &Step{Name: "g", Groups: []string{"corn"}}
		assert.True(t, s.AppliesTo(base, groups))
		assert.True(t, s.AppliesTo(corn, groups))
		assert.False(t, s.AppliesTo(other, groups))
	})

	t.Run("multiple groups are a union", func(t *testing.T) {
		s := &Step{Name: "g", Groups: []string{"corn", "cell"}}
		assert.True(t, s.AppliesTo(&scenario.Scenario{Name: "cell-10"}, groups))
		assert.False(t, s.AppliesTo(other, groups))
	})

	t.Run("type filter", func(t *testing.T) {
		s := &Step{Name: "t", ScenarioTypes: []scenario.Type{scenario.TypeBaseline}}
		assert.True(t, s.AppliesTo(base, groups))
		assert.False(t, s.AppliesTo(corn, groups))
	})

	t.Run("both filters must pass", func(t *testing.T) {
		s := &Step{
			Name:          "both",
			Groups:        []string{"corn"},
			ScenarioTypes: []scenario.Type{scenario.TypeBaseline},
		}
		assert.True(t, s.AppliesTo(base, groups))
		assert.False(t, s.AppliesTo(corn, groups), "in group but wrong type")
	})
}

func TestLoadRejectsUnknownTopLevelBlock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "project.hcl")
	contents := strings.Replace(sampleProject, "queue {", "quue {", 1)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	_, err := Load(context.Background(), path)
	assert.Error(t, err)
}
