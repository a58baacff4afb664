package setupxml

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scengridgo/internal/delta"
	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/registry"
	"github.com/vk/scengridgo/internal/scenario"
	"github.com/vk/scengridgo/internal/workspace"
)

const inputXML = `<config>
  <setting name="stop-year">2050</setting>
  <setting name="solver">fast</setting>
</config>`

// fixture lays out a reference directory holding config.xml and a sandbox
// that links to it, the way the workspace manager sets scenarios up.
func fixture(t *testing.T) (*registry.RunContext, *bytes.Buffer) {
	t.Helper()
	refDir := t.TempDir()
	sandbox := t.TempDir()

	refFile := filepath.Join(refDir, "config.xml")
	require.NoError(t, os.WriteFile(refFile, []byte(inputXML), 0o644))
	require.NoError(t, os.Symlink(refFile, filepath.Join(sandbox, "config.xml")))

	log := &bytes.Buffer{}
	rc := &registry.RunContext{
		Scenario: &scenario.Scenario{Name: "policy", Type: scenario.TypeDerived, Active: true},
		Project:  &project.Project{ReferenceDir: refDir},
		Sandbox:  workspace.Sandbox{Scenario: "policy", Dir: sandbox, OutDir: filepath.Join(sandbox, "output")},
		RunID:    "test-run",
		Log:      log,
	}
	return rc, log
}

func withConfig(rc *registry.RunContext, edits []delta.Edit, inserts []delta.Insert) {
	rc.Config = &delta.ConcreteConfig{
		Scenario: rc.Scenario.Name,
		Chain:    []string{rc.Scenario.Name},
		Edits:    edits,
		Inserts:  inserts,
	}
}

func TestOnRunSetupXML(t *testing.T) {
	ctx := context.Background()

	t.Run("localizes the linked file and applies edits", func(t *testing.T) {
		rc, _ := fixture(t)
		withConfig(rc, []delta.Edit{
			{File: "config.xml", Path: "./setting[@name='stop-year']", Op: delta.OpSet, Value: "2100"},
		}, nil)

		outcome, err := OnRunSetupXML(ctx, rc, &Input{})
		require.NoError(t, err)
		require.NotNil(t, outcome)

		local := filepath.Join(rc.Sandbox.Dir, "config.xml")
		info, err := os.Lstat(local)
		require.NoError(t, err)
		assert.Zero(t, info.Mode()&os.ModeSymlink, "sandbox file should be a private copy, not a link")

		data, err := os.ReadFile(local)
		require.NoError(t, err)
		assert.Contains(t, string(data), "2100")

		// The shared reference tree is untouched.
		refData, err := os.ReadFile(filepath.Join(rc.Project.ReferenceDir, "config.xml"))
		require.NoError(t, err)
		assert.Contains(t, string(refData), "2050")
	})

	t.Run("copies a missing file in from the reference directory", func(t *testing.T) {
		rc, _ := fixture(t)
		require.NoError(t, os.Remove(filepath.Join(rc.Sandbox.Dir, "config.xml")))
		withConfig(rc, []delta.Edit{
			{File: "config.xml", Path: "./setting[@name='solver']", Op: delta.OpSet, Value: "precise"},
		}, nil)

		_, err := OnRunSetupXML(ctx, rc, &Input{})
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(rc.Sandbox.Dir, "config.xml"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "precise")
	})

	t.Run("unmatched edit is a warning by default and an error when strict", func(t *testing.T) {
		rc, log := fixture(t)
		withConfig(rc, []delta.Edit{
			{File: "config.xml", Path: "./setting[@name='no-such']", Op: delta.OpSet, Value: "x"},
		}, nil)

		_, err := OnRunSetupXML(ctx, rc, &Input{})
		require.NoError(t, err)
		assert.Contains(t, log.String(), "matched no element")

		rc2, _ := fixture(t)
		withConfig(rc2, []delta.Edit{
			{File: "config.xml", Path: "./setting[@name='no-such']", Op: delta.OpSet, Value: "x"},
		}, nil)
		_, err = OnRunSetupXML(ctx, rc2, &Input{Strict: true})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "matches nothing")
	})

	t.Run("inserts payload elements", func(t *testing.T) {
		rc, _ := fixture(t)
		withConfig(rc, nil, []delta.Insert{
			{File: "config.xml", Path: ".", Payload: `<setting name="carbon-tax">25</setting>`},
		})

		_, err := OnRunSetupXML(ctx, rc, &Input{})
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(rc.Sandbox.Dir, "config.xml"))
		require.NoError(t, err)
		assert.Contains(t, string(data), "carbon-tax")
	})

	t.Run("missing configuration is an error", func(t *testing.T) {
		rc, _ := fixture(t)
		rc.Config = nil
		_, err := OnRunSetupXML(ctx, rc, &Input{})
		require.Error(t, err)
	})

	t.Run("unknown generator is an error", func(t *testing.T) {
		rc, _ := fixture(t)
		rc.Scenario.Generator = "dynamic-xml"
		_, err := OnRunSetupXML(ctx, rc, &Input{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown generator")
	})

	t.Run("static-xml generator uses the copy path", func(t *testing.T) {
		rc, _ := fixture(t)
		rc.Scenario.Generator = "static-xml"
		withConfig(rc, nil, nil)
		_, err := OnRunSetupXML(ctx, rc, &Input{})
		require.NoError(t, err)
	})
}
