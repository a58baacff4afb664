package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/scenario"
)

func testScenario(name string) *scenario.Scenario {
	return &scenario.Scenario{Name: name, Subdir: name, Type: scenario.TypeDerived, Active: true}
}

// testLayout builds a reference directory with a couple of files and a
// nested input tree, and returns a manager rooted in a sibling workspace.
func testLayout(t *testing.T, groups map[string][]string, groupOrder []string) (*Manager, string) {
	t.Helper()
	base := t.TempDir()
	refDir := filepath.Join(base, "reference")

	files := map[string]string{
		"configuration/core.xml": "<configuration/>",
		"input/data/prices.csv":  "year,price\n2020,42\n",
	}
	for rel, body := range files {
		path := filepath.Join(refDir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	proj := &project.Project{
		Workspace:      filepath.Join(base, "sandboxes"),
		ReferenceDir:   refDir,
		ReferenceFiles: []string{"configuration/core.xml", "input"},
		Groups:         groups,
		GroupOrder:     groupOrder,
	}
	return NewManager(proj), base
}

func TestDir(t *testing.T) {
	groups := map[string][]string{
		"tax":  {"carbon-10", "carbon-25"},
		"all":  {"carbon-10", "base"},
		"none": {},
	}
	m, base := testLayout(t, groups, []string{"tax", "all", "none"})
	ws := filepath.Join(base, "sandboxes")

	t.Run("grouped scenario lives under its group", func(t *testing.T) {
		assert.Equal(t, filepath.Join(ws, "tax", "carbon-25"), m.Dir(testScenario("carbon-25")))
	})

	t.Run("first declaring group wins", func(t *testing.T) {
		assert.Equal(t, filepath.Join(ws, "tax", "carbon-10"), m.Dir(testScenario("carbon-10")))
	})

	t.Run("ungrouped scenario lives at the root", func(t *testing.T) {
		assert.Equal(t, filepath.Join(ws, "solo"), m.Dir(testScenario("solo")))
	})

	t.Run("sandbox paths hang off the dir", func(t *testing.T) {
		sb := m.Sandbox(testScenario("solo"))
		assert.Equal(t, filepath.Join(ws, "solo", "exe"), sb.ExeDir)
		assert.Equal(t, filepath.Join(ws, "solo", "exe", "logs"), sb.LogDir)
		assert.Equal(t, filepath.Join(ws, "solo", "output"), sb.OutDir)
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	m, _ := testLayout(t, nil, nil)

	sb, err := m.Create(ctx, testScenario("base"), false)
	require.NoError(t, err)

	assert.DirExists(t, sb.LogDir)
	assert.DirExists(t, sb.OutDir)

	body, err := os.ReadFile(filepath.Join(sb.Dir, "configuration", "core.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<configuration/>", string(body))

	body, err = os.ReadFile(filepath.Join(sb.Dir, "input", "data", "prices.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "2020,42")

	_, err = os.Lstat(filepath.Join(sb.Dir, semaphoreName))
	assert.True(t, os.IsNotExist(err), "semaphore must be gone after a clean build")
	_, err = os.Lstat(filepath.Join(sb.Dir, semaphoreName+".lock"))
	assert.True(t, os.IsNotExist(err), "lock must be released")
}

func TestCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, _ := testLayout(t, nil, nil)
	sc := testScenario("base")

	sb, err := m.Create(ctx, sc, false)
	require.NoError(t, err)

	// Results written by earlier steps survive a repeat non-force create.
	marker := filepath.Join(sb.OutDir, "results.dat")
	require.NoError(t, os.WriteFile(marker, []byte("kept"), 0o644))

	_, err = m.Create(ctx, sc, false)
	require.NoError(t, err)
	assert.FileExists(t, marker)
}

func TestCreateForceClears(t *testing.T) {
	ctx := context.Background()
	m, _ := testLayout(t, nil, nil)
	sc := testScenario("base")

	sb, err := m.Create(ctx, sc, false)
	require.NoError(t, err)
	marker := filepath.Join(sb.OutDir, "results.dat")
	require.NoError(t, os.WriteFile(marker, []byte("stale"), 0o644))

	_, err = m.Create(ctx, sc, true)
	require.NoError(t, err)
	_, err = os.Stat(marker)
	assert.True(t, os.IsNotExist(err), "force should clear previous outputs")
	assert.FileExists(t, filepath.Join(sb.Dir, "configuration", "core.xml"))
}

func TestHalfBuiltSandboxIsRebuilt(t *testing.T) {
	ctx := context.Background()
	m, _ := testLayout(t, nil, nil)
	sc := testScenario("base")
	sb := m.Sandbox(sc)

	// Simulate a run that died between writing the semaphore and finishing.
	require.NoError(t, os.MkdirAll(sb.Dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sb.Dir, semaphoreName), nil, 0o644))
	junk := filepath.Join(sb.Dir, "partial.tmp")
	require.NoError(t, os.WriteFile(junk, []byte("x"), 0o644))

	_, err := m.Create(ctx, sc, false)
	require.NoError(t, err)

	_, err = os.Stat(junk)
	assert.True(t, os.IsNotExist(err), "half-built contents should be discarded")
	assert.FileExists(t, filepath.Join(sb.Dir, "configuration", "core.xml"))
	_, err = os.Lstat(filepath.Join(sb.Dir, semaphoreName))
	assert.True(t, os.IsNotExist(err))
}

func TestCreateRefusesReferenceDir(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	refDir := filepath.Join(base, "ws", "base")
	require.NoError(t, os.MkdirAll(refDir, 0o755))

	m := NewManager(&project.Project{
		Workspace:    filepath.Join(base, "ws"),
		ReferenceDir: refDir,
	})

	_, err := m.Create(ctx, testScenario("base"), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reference directory")
}

func TestReferenceFilesDiscoveredWhenUndeclared(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	refDir := filepath.Join(base, "reference")
	for rel, body := range map[string]string{
		"configuration/core.xml": "<configuration/>",
		"policy/tax.xml":         "<policy/>",
		"notes/readme.txt":       "not an input",
	} {
		path := filepath.Join(refDir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	m := NewManager(&project.Project{
		Workspace:    filepath.Join(base, "sandboxes"),
		ReferenceDir: refDir,
	})

	sb, err := m.Create(ctx, testScenario("base"), false)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(sb.Dir, "configuration", "core.xml"))
	assert.FileExists(t, filepath.Join(sb.Dir, "policy", "tax.xml"))
	assert.NoFileExists(t, filepath.Join(sb.Dir, "notes", "readme.txt"))
}
