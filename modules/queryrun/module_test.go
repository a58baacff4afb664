package queryrun

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scengridgo/internal/registry"
	"github.com/vk/scengridgo/internal/scenario"
	"github.com/vk/scengridgo/internal/workspace"
)

func fixture(t *testing.T) *registry.RunContext {
	t.Helper()
	dir := t.TempDir()
	outDir := filepath.Join(dir, "output")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	return &registry.RunContext{
		Scenario: &scenario.Scenario{Name: "policy", Type: scenario.TypeDerived, Active: true},
		Sandbox:  workspace.Sandbox{Scenario: "policy", Dir: dir, OutDir: outDir},
		RunID:    "test-run",
		Log:      &bytes.Buffer{},
	}
}

func TestOnRunQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("runs the command once per query with substituted placeholders", func(t *testing.T) {
		rc := fixture(t)

		outcome, err := OnRunQuery(ctx, rc, &Input{
			Command: `echo "result of {query}" > {outfile}`,
			Queries: []string{"emissions", "land-use"},
		})

		require.NoError(t, err)
		require.NotNil(t, outcome)
		for _, q := range []string{"emissions", "land-use"} {
			data, err := os.ReadFile(filepath.Join(rc.Sandbox.OutDir, "queries", q+".csv"))
			require.NoError(t, err)
			assert.Contains(t, string(data), "result of "+q)
		}
	})

	t.Run("custom result dir", func(t *testing.T) {
		rc := fixture(t)

		_, err := OnRunQuery(ctx, rc, &Input{
			Command:   `echo x > {outfile}`,
			Queries:   []string{"emissions"},
			ResultDir: "extracted",
		})

		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(rc.Sandbox.OutDir, "extracted", "emissions.csv"))
	})

	t.Run("failing query stops the batch", func(t *testing.T) {
		rc := fixture(t)

		_, err := OnRunQuery(ctx, rc, &Input{
			Command: `exit 2`,
			Queries: []string{"emissions", "land-use"},
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), `query "emissions" exited with code 2`)
	})

	t.Run("no queries is an error", func(t *testing.T) {
		rc := fixture(t)
		_, err := OnRunQuery(ctx, rc, &Input{Command: "true"})
		require.Error(t, err)
	})
}
