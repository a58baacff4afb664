package dispatch

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/ledger"
	"github.com/vk/scengridgo/internal/plan"
	"github.com/vk/scengridgo/internal/workspace"
)

// CommandRunner runs one shell command line and returns its combined output.
type CommandRunner interface {
	CombinedOutput(ctx context.Context, command string) ([]byte, error)
}

// ShellRunner executes commands through /bin/sh the way a user would type
// them, which is what the queue CLIs expect.
type ShellRunner struct{}

func (ShellRunner) CombinedOutput(ctx context.Context, command string) ([]byte, error) {
	return exec.CommandContext(ctx, "/bin/sh", "-c", command).CombinedOutput()
}

// ClusterOptions configures batch submission.
type ClusterOptions struct {
	Queue QueueSpec

	// ProjectPath and LedgerPath are forwarded to the remote invocation so
	// the compute node resolves the same project and writes the same ledger.
	ProjectPath string
	LedgerPath  string

	// Force is forwarded so a forced run also reruns on the node.
	Force bool

	// MaxQueuedJobs bounds how many jobs this invocation keeps in the queue
	// at once. 0 means unbounded.
	MaxQueuedJobs int

	// Executable is the binary named in job scripts. Defaults to the
	// running binary, which on shared filesystems is what the node sees.
	Executable string

	// Shell runs the queue commands. Defaults to ShellRunner.
	Shell CommandRunner
}

// ClusterRunner executes units by handing them to a batch queue: it writes a
// job script that re-invokes this binary in local mode for exactly one unit,
// submits it, and polls until the job leaves the queue. Success is never
// inferred from queue output; it is confirmed by the ledger entry the remote
// invocation writes at this unit's fingerprint.
type ClusterRunner struct {
	opts      ClusterOptions
	sandboxes *sandboxCache
	ledger    *ledger.Ledger
	slots     *semaphore.Weighted // nil when MaxQueuedJobs is 0
}

func NewClusterRunner(ws *workspace.Manager, led *ledger.Ledger, opts ClusterOptions) (*ClusterRunner, error) {
	if opts.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable for job scripts: %w", err)
		}
		opts.Executable = exe
	}
	if opts.Shell == nil {
		opts.Shell = ShellRunner{}
	}
	if opts.Queue.PollInterval <= 0 {
		opts.Queue.PollInterval = 30 * time.Second
	}
	if opts.Queue.PollFailuresFatal <= 0 {
		opts.Queue.PollFailuresFatal = 5
	}
	r := &ClusterRunner{opts: opts, sandboxes: newSandboxCache(ws), ledger: led}
	if opts.MaxQueuedJobs > 0 {
		r.slots = semaphore.NewWeighted(int64(opts.MaxQueuedJobs))
	}
	return r, nil
}

// Run submits one unit and blocks until its job completes, fails, or the run
// is canceled.
func (r *ClusterRunner) Run(ctx context.Context, unit *plan.RunUnit) error {
	logger := ctxlog.FromContext(ctx)

	if r.slots != nil {
		if err := r.slots.Acquire(ctx, 1); err != nil {
			return err
		}
		defer r.slots.Release(1)
	}

	sb, err := r.sandboxes.ensure(ctx, unit.Scenario)
	if err != nil {
		return err
	}

	scriptFile, err := r.writeJobScript(sb, unit)
	if err != nil {
		return err
	}

	submitCmd, err := expandTemplate(r.opts.Queue.SubmitTemplate, r.submitValues(sb, unit, scriptFile))
	if err != nil {
		return err
	}

	logger.Info("Submitting unit to batch queue.", "system", r.opts.Queue.System, "command", submitCmd)
	out, err := r.opts.Shell.CombinedOutput(ctx, submitCmd)
	if err != nil {
		return fmt.Errorf("submit %s: %w: %s", unit.ID(), err, firstLine(out))
	}
	id, err := parseJobID(string(out))
	if err != nil {
		return err
	}
	unit.JobID = id
	logger.Info("Job submitted.", "job", id)

	return r.await(ctx, unit, id)
}

// SubmitCommand renders the submit command line for a unit without touching
// the filesystem or the queue. Dry runs print it.
func (r *ClusterRunner) SubmitCommand(unit *plan.RunUnit) (string, error) {
	sb := r.sandboxes.manager.Sandbox(unit.Scenario)
	scriptFile := filepath.Join(sb.ExeDir, jobScriptName(unit))
	return expandTemplate(r.opts.Queue.SubmitTemplate, r.submitValues(sb, unit, scriptFile))
}

func (r *ClusterRunner) submitValues(sb workspace.Sandbox, unit *plan.RunUnit, scriptFile string) map[string]string {
	return map[string]string{
		"scriptFile": scriptFile,
		"logFile":    filepath.Join(sb.LogDir, unit.Step.Name+".batch.log"),
		"exeDir":     sb.ExeDir,
		"walltime":   r.opts.Queue.Walltime(),
		"minutes":    strconv.Itoa(r.opts.Queue.WalltimeMinutes),
		"queueName":  r.opts.Queue.QueueName,
		"partition":  r.opts.Queue.QueueName,
		"jobName":    jobName(unit),
	}
}

// await polls the queue until the job resolves. Poll command failures are
// tolerated up to PollFailuresFatal in a row; queued observations reset the
// count.
func (r *ClusterRunner) await(ctx context.Context, unit *plan.RunUnit, id string) error {
	logger := ctxlog.FromContext(ctx)

	pollCmd, err := expandTemplate(r.opts.Queue.PollTemplate, map[string]string{"jobId": id})
	if err != nil {
		return err
	}

	ticker := time.NewTicker(r.opts.Queue.PollInterval)
	defer ticker.Stop()

	misses := 0
	for {
		select {
		case <-ctx.Done():
			r.cancelJob(ctx, id)
			return ctx.Err()
		case <-ticker.C:
		}

		out, err := r.opts.Shell.CombinedOutput(ctx, pollCmd)
		if err != nil {
			if ctx.Err() != nil {
				r.cancelJob(ctx, id)
				return ctx.Err()
			}
			misses++
			logger.Warn("Queue poll failed.", "job", id, "attempt", misses, "error", err)
			if misses >= r.opts.Queue.PollFailuresFatal {
				if r.confirmed(unit) {
					unit.ExitCode = 0
					return nil
				}
				return fmt.Errorf("lost track of job %s after %d failed polls: %w", id, misses, err)
			}
			continue
		}
		misses = 0

		switch r.opts.Queue.ClassifyPoll(string(out)) {
		case jobQueued:
			logger.Debug("Job still in queue.", "job", id, "state", firstLine(out))
		case jobFailed:
			return fmt.Errorf("queue reports job %s failed: %s", id, firstLine(out))
		case jobLeft:
			if r.confirmed(unit) {
				unit.ExitCode = 0
				return nil
			}
			return fmt.Errorf("job %s left the queue without recording success", id)
		}
	}
}

// confirmed reloads the ledger and checks whether the remote invocation
// recorded a success at this unit's fingerprint.
func (r *ClusterRunner) confirmed(unit *plan.RunUnit) bool {
	if r.ledger == nil {
		return false
	}
	if err := r.ledger.Reload(); err != nil {
		return false
	}
	fp, ok := r.ledger.SucceededFingerprint(unit.Scenario.Name, unit.Step.Name)
	return ok && fp == unit.Fingerprint
}

// cancelJob best-effort removes the job from the queue when the run is
// canceled. The incoming ctx is already done, so the command gets its own
// short deadline.
func (r *ClusterRunner) cancelJob(ctx context.Context, id string) {
	logger := ctxlog.FromContext(ctx)

	cancelCmd, err := expandTemplate(r.opts.Queue.CancelTemplate, map[string]string{"jobId": id})
	if err != nil {
		logger.Warn("Cannot build cancel command.", "job", id, "error", err)
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if out, err := r.opts.Shell.CombinedOutput(cctx, cancelCmd); err != nil {
		logger.Warn("Cancel command failed.", "job", id, "error", err, "output", firstLine(out))
		return
	}
	logger.Info("Canceled batch job.", "job", id)
}

// writeJobScript writes the wrapper the queue executes: the same binary,
// pointed at the same project and ledger, restricted to this one unit and
// pinned to local mode so the compute node runs the step itself.
func (r *ClusterRunner) writeJobScript(sb workspace.Sandbox, unit *plan.RunUnit) (string, error) {
	args := []string{
		shQuote(r.opts.Executable),
		"-p", shQuote(r.opts.ProjectPath),
		"-S", shQuote(unit.Scenario.Name),
		"-s", shQuote(unit.Step.Name),
		"-mode", "local",
	}
	if r.opts.Force {
		args = append(args, "-f")
	}
	if r.opts.LedgerPath != "" {
		args = append(args, "-ledger", shQuote(r.opts.LedgerPath))
	}
	script := "#!/bin/sh\nexec " + strings.Join(args, " ") + "\n"

	path := filepath.Join(sb.ExeDir, jobScriptName(unit))
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("write job script %q: %w", path, err)
	}
	return path, nil
}

func jobScriptName(unit *plan.RunUnit) string { return "run-" + unit.Step.Name + ".sh" }

var jobNameSanitizer = regexp.MustCompile(`[^\w.-]+`)

func jobName(unit *plan.RunUnit) string {
	return jobNameSanitizer.ReplaceAllString("sg-"+unit.Scenario.Name+"-"+unit.Step.Name, "-")
}

var shSafePattern = regexp.MustCompile(`^[\w@%+=:,./-]+$`)

// shQuote single-quotes s for /bin/sh unless it is obviously safe.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	if shSafePattern.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
