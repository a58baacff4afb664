package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/vk/scengridgo/internal/dispatch"
	"github.com/vk/scengridgo/internal/project"
)

// buildQueueSpec layers the batch-queue configuration: built-in templates
// for the chosen system, then the user's settings file, then the project's
// queue block. The project wins so a project pinned to one cluster behaves
// the same for every user.
func buildQueueSpec(s QueueSettings, q *project.Queue) (dispatch.QueueSpec, error) {
	system := dispatch.SystemSLURM
	if s.System != "" {
		system = strings.ToUpper(s.System)
	}
	if q != nil && q.System != "" {
		system = strings.ToUpper(q.System)
	}

	spec, err := dispatch.NewQueueSpec(system)
	if err != nil {
		return dispatch.QueueSpec{}, err
	}

	applyQueueSettings(&spec, s)
	if q != nil {
		applyProjectQueue(&spec, q)
	}

	if spec.QueueName == "" {
		return dispatch.QueueSpec{}, fmt.Errorf(
			"cluster mode needs a queue name: set queue_name in the project's queue block or in the settings file")
	}
	return spec, nil
}

func applyQueueSettings(spec *dispatch.QueueSpec, s QueueSettings) {
	if s.QueueName != "" {
		spec.QueueName = s.QueueName
	}
	if s.WalltimeMinutes > 0 {
		spec.WalltimeMinutes = s.WalltimeMinutes
	}
	if s.SubmitTemplate != "" {
		spec.SubmitTemplate = s.SubmitTemplate
	}
	if s.PollTemplate != "" {
		spec.PollTemplate = s.PollTemplate
	}
	if s.CancelTemplate != "" {
		spec.CancelTemplate = s.CancelTemplate
	}
	if time.Duration(s.PollInterval) > 0 {
		spec.PollInterval = time.Duration(s.PollInterval)
	}
	if s.PollFailuresFatal > 0 {
		spec.PollFailuresFatal = s.PollFailuresFatal
	}
}

func applyProjectQueue(spec *dispatch.QueueSpec, q *project.Queue) {
	if q.QueueName != "" {
		spec.QueueName = q.QueueName
	}
	if q.WalltimeMinutes > 0 {
		spec.WalltimeMinutes = q.WalltimeMinutes
	}
	if q.SubmitTemplate != "" {
		spec.SubmitTemplate = q.SubmitTemplate
	}
	if q.PollTemplate != "" {
		spec.PollTemplate = q.PollTemplate
	}
	if q.CancelTemplate != "" {
		spec.CancelTemplate = q.CancelTemplate
	}
}
