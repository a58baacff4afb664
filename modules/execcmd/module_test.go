package execcmd

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

func testRunContext(t *testing.T, log *bytes.Buffer) *registry.RunContext {
	t.Helper()
	dir := t.TempDir()
	return &registry.RunContext{
		Scenario: &scenario.Scenario{Name: "base", Type: scenario.TypeBaseline, Active: true},
		Sandbox: workspace.Sandbox{
			Scenario: "base",
			Dir:      dir,
			ExeDir:   dir,
			LogDir:   dir,
			OutDir:   dir,
		},
		RunID: "test-run",
		Log:   log,
	}
}

func TestOnRunExec(t *testing.T) {
	ctx := context.Background()

	t.Run("streams output and reports exit code zero", func(t *testing.T) {
		log := &bytes.Buffer{}
		rc := testRunContext(t, log)

		outcome, err := OnRunExec(ctx, rc, &Input{Command: "echo hello"})

		require.NoError(t, err)
		require.NotNil(t, outcome)
		assert.Equal(t, 0, outcome.ExitCode)
		assert.Contains(t, log.String(), "hello")
	})

	t.Run("runs in the sandbox by default", func(t *testing.T) {
		log := &bytes.Buffer{}
		rc := testRunContext(t, log)

		_, err := OnRunExec(ctx, rc, &Input{Command: "pwd"})

		require.NoError(t, err)
		resolved, err := filepath.EvalSymlinks(rc.Sandbox.Dir)
		require.NoError(t, err)
		assert.Contains(t, log.String(), resolved)
	})

	t.Run("exposes unit identity and extra env", func(t *testing.T) {
		log := &bytes.Buffer{}
		rc := testRunContext(t, log)

		_, err := OnRunExec(ctx, rc, &Input{
			Command: "echo $SCENGRID_SCENARIO $MODEL_YEARS",
			Env:     map[string]string{"MODEL_YEARS": "2030"},
		})

		require.NoError(t, err)
		assert.Contains(t, log.String(), "base 2030")
	})

	t.Run("non-zero exit fails with the code", func(t *testing.T) {
		log := &bytes.Buffer{}
		rc := testRunContext(t, log)

		_, err := OnRunExec(ctx, rc, &Input{Command: "exit 3"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "exited with code 3")
	})

	t.Run("canceled context fails the command", func(t *testing.T) {
		log := &bytes.Buffer{}
		rc := testRunContext(t, log)
		canceled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := OnRunExec(canceled, rc, &Input{Command: "sleep 5"})

		require.Error(t, err)
	})
}

func TestBuildEnvIsDeterministic(t *testing.T) {
	rc := testRunContext(t, &bytes.Buffer{})
	extra := map[string]string{"B": "2", "A": "1", "C": "3"}

	first := buildEnv(rc, extra)
	second := buildEnv(rc, extra)

	require.Equal(t, first, second)
	base := len(os.Environ()) + 4
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, first[base:])
}
