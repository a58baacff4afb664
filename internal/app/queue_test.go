package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scengridgo/internal/dispatch"
	"github.com/vk/scengridgo/internal/project"
)

func TestBuildQueueSpec(t *testing.T) {
	t.Run("defaults to SLURM templates", func(t *testing.T) {
		spec, err := buildQueueSpec(QueueSettings{QueueName: "shared"}, nil)
		require.NoError(t, err)
		assert.Equal(t, dispatch.SystemSLURM, spec.System)
		assert.Contains(t, spec.SubmitTemplate, "sbatch")
		assert.Equal(t, "shared", spec.QueueName)
	})

	t.Run("project queue block overrides settings", func(t *testing.T) {
		settings := QueueSettings{
			System:          "slurm",
			QueueName:       "shared",
			WalltimeMinutes: 60,
			PollInterval:    Duration(10 * time.Second),
		}
		proj := &project.Queue{System: "lsf", QueueName: "premium", WalltimeMinutes: 480}

		spec, err := buildQueueSpec(settings, proj)
		require.NoError(t, err)
		assert.Equal(t, dispatch.SystemLSF, spec.System)
		assert.Equal(t, "premium", spec.QueueName)
		assert.Equal(t, 480, spec.WalltimeMinutes)
		assert.Equal(t, 10*time.Second, spec.PollInterval, "settings survive where the project is silent")
		assert.Contains(t, spec.SubmitTemplate, "bsub")
	})

	t.Run("custom templates replace the built-ins", func(t *testing.T) {
		proj := &project.Queue{QueueName: "q", SubmitTemplate: "mysubmit {scriptFile}"}
		spec, err := buildQueueSpec(QueueSettings{}, proj)
		require.NoError(t, err)
		assert.Equal(t, "mysubmit {scriptFile}", spec.SubmitTemplate)
	})

	t.Run("unknown system is an error", func(t *testing.T) {
		_, err := buildQueueSpec(QueueSettings{System: "condor", QueueName: "q"}, nil)
		require.Error(t, err)
	})

	t.Run("missing queue name is an error", func(t *testing.T) {
		_, err := buildQueueSpec(QueueSettings{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue name")
	})
}
