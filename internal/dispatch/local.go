package dispatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/hashicorp/hcl/v2/gohcl"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/ledger"
	"github.com/vk/scengridgo/internal/plan"
	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/registry"
	"github.com/vk/scengridgo/internal/workspace"
)

// LocalRunner executes units in-process: it decodes the step's argument
// block, calls the registered action handler, streams output to a per-unit
// log file in the scenario sandbox, and records success in the ledger.
type LocalRunner struct {
	registry  *registry.Registry
	project   *project.Project
	sandboxes *sandboxCache
	ledger    *ledger.Ledger
	runID     string
}

// NewLocalRunner wires a LocalRunner. ledger may be nil in dry contexts;
// successes are then not recorded.
func NewLocalRunner(reg *registry.Registry, proj *project.Project, ws *workspace.Manager, led *ledger.Ledger, runID string) *LocalRunner {
	return &LocalRunner{
		registry:  reg,
		project:   proj,
		sandboxes: newSandboxCache(ws),
		ledger:    led,
		runID:     runID,
	}
}

// Run executes one unit's action synchronously.
func (r *LocalRunner) Run(ctx context.Context, unit *plan.RunUnit) error {
	logger := ctxlog.FromContext(ctx)

	action, ok := r.registry.Action(unit.Step.ActionType)
	if !ok {
		return fmt.Errorf("unknown action type %q", unit.Step.ActionType)
	}

	sb, err := r.sandboxes.ensure(ctx, unit.Scenario)
	if err != nil {
		return err
	}

	logPath := filepath.Join(sb.LogDir, unit.Step.Name+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("create unit log %q: %w", logPath, err)
	}
	defer logFile.Close()
	logger.Debug("Unit output goes to log file.", "path", logPath)

	input := action.NewInput()
	if unit.Step.Arguments != nil {
		evalCtx := buildEvalContext(unit, sb, r.project)
		if diags := gohcl.DecodeBody(unit.Step.Arguments, evalCtx, input); diags.HasErrors() {
			return fmt.Errorf("decode arguments for step %q: %w", unit.Step.Name, diags)
		}
	}

	runCtx := &registry.RunContext{
		Scenario: unit.Scenario,
		Step:     unit.Step.Name,
		Config:   unit.Config,
		Project:  r.project,
		Sandbox:  sb,
		RunID:    r.runID,
		Log:      logFile,
	}

	handler := reflect.ValueOf(action.Fn)
	results := handler.Call([]reflect.Value{
		reflect.ValueOf(ctx),
		reflect.ValueOf(runCtx),
		reflect.ValueOf(input),
	})
	outcomeVal, errVal := results[0].Interface(), results[1].Interface()
	if errVal != nil {
		return errVal.(error)
	}
	if outcome, ok := outcomeVal.(*registry.Outcome); ok && outcome != nil {
		unit.ExitCode = outcome.ExitCode
		if outcome.Detail != "" {
			logger.Debug("Action reported detail.", "detail", outcome.Detail)
		}
	}

	if r.ledger != nil {
		if err := r.ledger.MarkSucceeded(unit.Scenario.Name, unit.Step.Name, unit.Fingerprint); err != nil {
			return fmt.Errorf("record success: %w", err)
		}
	}
	return nil
}
