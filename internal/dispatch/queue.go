package dispatch

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Batch systems with built-in command templates.
const (
	SystemSLURM = "SLURM"
	SystemPBS   = "PBS"
	SystemLSF   = "LSF"
)

// QueueSpec holds the batch queue's command templates and submission
// defaults. Templates use {placeholder} substitution; submit templates may
// reference scriptFile, logFile, exeDir, walltime, minutes, queueName,
// partition and jobName, poll and cancel templates reference jobId.
type QueueSpec struct {
	System          string
	QueueName       string
	WalltimeMinutes int

	SubmitTemplate string
	PollTemplate   string
	CancelTemplate string

	PollInterval      time.Duration
	PollFailuresFatal int
}

type builtinQueue struct {
	submit string
	poll   string
	cancel string
}

var builtinQueues = map[string]builtinQueue{
	SystemSLURM: {
		submit: "sbatch -p {queueName} --nodes=1 -J {jobName} -t {walltime} -D {exeDir} -o {logFile} {scriptFile}",
		poll:   "squeue -h -o %T -j {jobId}",
		cancel: "scancel {jobId}",
	},
	SystemPBS: {
		submit: "qsub -q {queueName} -N {jobName} -l walltime={walltime} -d {exeDir} -o {logFile} -j oe {scriptFile}",
		poll:   "qstat -f {jobId}",
		cancel: "qdel {jobId}",
	},
	SystemLSF: {
		submit: "bsub -q {queueName} -J {jobName} -W {walltime} -cwd {exeDir} -o {logFile} {scriptFile}",
		poll:   "bjobs -noheader -o stat {jobId}",
		cancel: "bkill {jobId}",
	},
}

// KnownSystems returns the batch systems with built-in templates, sorted.
func KnownSystems() []string {
	names := make([]string, 0, len(builtinQueues))
	for name := range builtinQueues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewQueueSpec returns a QueueSpec for a known batch system with its
// built-in templates and default cadence. Callers overlay project or
// settings overrides on the returned value.
func NewQueueSpec(system string) (QueueSpec, error) {
	b, ok := builtinQueues[system]
	if !ok {
		return QueueSpec{}, fmt.Errorf("batch system %q is not recognized, must be one of %s",
			system, strings.Join(KnownSystems(), ", "))
	}
	return QueueSpec{
		System:            system,
		WalltimeMinutes:   60,
		SubmitTemplate:    b.submit,
		PollTemplate:      b.poll,
		CancelTemplate:    b.cancel,
		PollInterval:      30 * time.Second,
		PollFailuresFatal: 5,
	}, nil
}

// Walltime formats the walltime request. LSF wants HH:MM, the others
// HH:MM:SS.
func (q QueueSpec) Walltime() string {
	h, m := q.WalltimeMinutes/60, q.WalltimeMinutes%60
	if q.System == SystemLSF {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:00", h, m)
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// expandTemplate substitutes {placeholder} occurrences from values. A
// placeholder the map does not know is a template error, mirroring how a
// typo'd submit flag should fail loudly instead of reaching the queue.
func expandTemplate(template string, values map[string]string) (string, error) {
	var unknown []string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := values[key]
		if !ok {
			unknown = append(unknown, key)
			return m
		}
		return v
	})
	if len(unknown) > 0 {
		return "", fmt.Errorf("queue template %q references unknown placeholder(s): %s",
			template, strings.Join(unknown, ", "))
	}
	return out, nil
}

var jobIDPattern = regexp.MustCompile(`\d+`)

// parseJobID scrapes the job id from submit output: the first integer, which
// is where sbatch, qsub and bsub all put it.
func parseJobID(out string) (string, error) {
	if id := jobIDPattern.FindString(out); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("no job id in submit output %q", strings.TrimSpace(out))
}

// jobState classifies one poll observation.
type jobState int

const (
	jobQueued jobState = iota // waiting or running
	jobLeft                   // no longer known to the queue
	jobFailed                 // queue explicitly reports failure
)

var slurmFailedStates = map[string]bool{
	"FAILED": true, "CANCELLED": true, "TIMEOUT": true, "NODE_FAIL": true,
	"PREEMPTED": true, "OUT_OF_MEMORY": true, "BOOT_FAIL": true, "DEADLINE": true,
}

// ClassifyPoll maps poll output to a job state. Success is never declared
// here: a job that has left the queue is confirmed against the ledger, which
// the job's own invocation writes.
func (q QueueSpec) ClassifyPoll(out string) jobState {
	trimmed := strings.TrimSpace(out)
	if trimmed == "" {
		return jobLeft
	}

	switch q.System {
	case SystemSLURM:
		state := strings.ToUpper(strings.Fields(trimmed)[0])
		state = strings.TrimSuffix(state, "+") // CANCELLED+ and friends
		if slurmFailedStates[state] {
			return jobFailed
		}
		if state == "COMPLETED" {
			return jobLeft
		}
		return jobQueued
	case SystemLSF:
		state := strings.ToUpper(strings.Fields(trimmed)[0])
		switch state {
		case "EXIT", "ZOMBI":
			return jobFailed
		case "DONE":
			return jobLeft
		default:
			return jobQueued
		}
	case SystemPBS:
		// qstat -f reports "job_state = X". C and F are terminal; PBS does
		// not distinguish success from failure here, the ledger does.
		for _, line := range strings.Split(trimmed, "\n") {
			fields := strings.Fields(line)
			if len(fields) == 3 && fields[0] == "job_state" && fields[1] == "=" {
				switch fields[2] {
				case "C", "F":
					return jobLeft
				default:
					return jobQueued
				}
			}
		}
		return jobQueued
	default:
		return jobQueued
	}
}
