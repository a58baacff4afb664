package execcmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'exec' action.
type Input struct {
	// Command is the shell command line to run. Step arguments are
	// interpolated before decoding, so it may reference workdir, outdir,
	// scenario.* and vars.*.
	Command string `hcl:"command"`

	// Dir is the working directory. Defaults to the scenario sandbox.
	Dir string `hcl:"dir,optional"`

	// Env adds environment variables on top of the inherited environment.
	Env map[string]string `hcl:"env,optional"`
}

// OnRunExec runs one shell command inside the scenario sandbox, streaming
// its combined output to the unit log. A non-zero exit fails the unit.
func OnRunExec(ctx context.Context, rc *registry.RunContext, input *Input) (*registry.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	dir := input.Dir
	if dir == "" {
		dir = rc.Sandbox.Dir
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", input.Command)
	cmd.Dir = dir
	cmd.Stdout = rc.Log
	cmd.Stderr = rc.Log
	cmd.Env = buildEnv(rc, input.Env)

	logger.Info("Running command.", "command", input.Command, "dir", dir)
	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, fmt.Errorf("command %q exited with code %d", input.Command, exitErr.ExitCode())
	}
	if err != nil {
		return nil, fmt.Errorf("run command %q: %w", input.Command, err)
	}
	return &registry.Outcome{ExitCode: 0}, nil
}

// buildEnv layers the step's env entries over the inherited environment and
// exposes the unit's identity and sandbox paths the way batch schedulers
// expose job metadata.
func buildEnv(rc *registry.RunContext, extra map[string]string) []string {
	env := os.Environ()
	env = append(env,
		"SCENGRID_SCENARIO="+rc.Scenario.Name,
		"SCENGRID_RUN_ID="+rc.RunID,
		"SCENGRID_WORKDIR="+rc.Sandbox.Dir,
		"SCENGRID_OUTDIR="+rc.Sandbox.OutDir,
	)

	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("exec", &registry.RegisteredAction{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunExec,
	})
}
