package modelrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'model' action.
type Input struct {
	// Executable is the simulation binary, resolved against the sandbox exe
	// directory when relative.
	Executable string `hcl:"executable"`

	// Args are passed to the executable verbatim.
	Args []string `hcl:"args,optional"`

	// Expect lists files, relative to the sandbox output directory, that a
	// successful run must produce. A zero-exit run that produced none of its
	// outputs still fails.
	Expect []string `hcl:"expect,optional"`
}

// OnRunModel launches the external simulation model in the scenario's exe
// directory and verifies the run produced its expected outputs.
func OnRunModel(ctx context.Context, rc *registry.RunContext, input *Input) (*registry.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	exe := input.Executable
	if !filepath.IsAbs(exe) && filepath.Base(exe) != exe {
		exe = filepath.Join(rc.Sandbox.ExeDir, exe)
	}

	cmd := exec.CommandContext(ctx, exe, input.Args...)
	cmd.Dir = rc.Sandbox.ExeDir
	cmd.Stdout = rc.Log
	cmd.Stderr = rc.Log

	logger.Info("Launching model.", "executable", exe, "args", input.Args, "dir", rc.Sandbox.ExeDir)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, fmt.Errorf("model %q exited with code %d after %s", exe, exitErr.ExitCode(), elapsed.Round(time.Second))
	}
	if err != nil {
		return nil, fmt.Errorf("launch model %q: %w", exe, err)
	}
	logger.Info("Model run finished.", "duration", elapsed.Round(time.Second))

	for _, rel := range input.Expect {
		path := filepath.Join(rc.Sandbox.OutDir, rel)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("model run produced no %q: %w", rel, err)
		}
	}

	return &registry.Outcome{Detail: fmt.Sprintf("model run took %s", elapsed.Round(time.Second))}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("model", &registry.RegisteredAction{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunModel,
	})
}
