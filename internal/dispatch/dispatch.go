// Package dispatch executes planned run units. A bounded worker pool walks
// each scenario's dependency closure in the planner's order, running units
// through a UnitRunner (local subprocess or batch-queue submission).
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/plan"
)

// UnitRunner executes one pending unit. Implementations record JobID and
// ExitCode on the unit; the dispatcher owns State, Duration and Err.
type UnitRunner interface {
	Run(ctx context.Context, unit *plan.RunUnit) error
}

// Options configure a Dispatcher.
type Options struct {
	// Workers bounds how many units may run at once. Minimum 1.
	Workers int

	// ContinueOnError keeps launching a scenario's independent units after
	// one of its units fails. Dependents of a failed unit never run either
	// way, and other scenarios always proceed.
	ContinueOnError bool

	// OnTransition, when set, is called from the worker goroutine after a
	// unit changes state. Callbacks must return quickly.
	OnTransition func(unit *plan.RunUnit)
}

// Dispatcher drives a plan to completion.
type Dispatcher struct {
	runner          UnitRunner
	workers         int
	continueOnError bool
	onTransition    func(unit *plan.RunUnit)
}

// New creates a Dispatcher that executes units with the given runner.
func New(runner UnitRunner, opts Options) *Dispatcher {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		runner:          runner,
		workers:         workers,
		continueOnError: opts.ContinueOnError,
		onTransition:    opts.OnTransition,
	}
}

// node wraps one planned unit with its intra-scenario dependency edges.
type node struct {
	unit       *plan.RunUnit
	dependents []*node
	depCount   atomic.Int32
	skipOnce   sync.Once
}

type scenarioState struct {
	halted atomic.Bool
}

// run holds the shared state of one Run invocation.
type run struct {
	d         *Dispatcher
	readyChan chan *node
	wg        sync.WaitGroup
	scenarios map[string]*scenarioState
}

// Run executes the plan and returns a summary covering every unit. The
// returned error carries the first real failure; cancellation marks
// in-flight and unstarted units failed.
func (d *Dispatcher) Run(ctx context.Context, units []*plan.RunUnit) (*Summary, error) {
	logger := ctxlog.FromContext(ctx)
	summary := &Summary{Units: units}
	if len(units) == 0 {
		return summary, nil
	}

	r := &run{
		d:         d,
		readyChan: make(chan *node, len(units)),
		scenarios: make(map[string]*scenarioState),
	}

	nodes := make([]*node, len(units))
	byID := make(map[string]*node, len(units))
	for i, u := range units {
		nodes[i] = &node{unit: u}
		byID[u.ID()] = nodes[i]
	}
	for _, n := range nodes {
		name := n.unit.Scenario.Name
		if _, ok := r.scenarios[name]; !ok {
			r.scenarios[name] = &scenarioState{}
		}
		// A pre-skipped unit is a recorded fact, not pending work: it waits
		// on nothing, only releases its dependents.
		if n.unit.State == plan.StateSkipped {
			continue
		}
		seen := make(map[string]bool, len(n.unit.Step.DependsOn))
		for _, depName := range n.unit.Step.DependsOn {
			if seen[depName] {
				continue
			}
			seen[depName] = true
			dep, ok := byID[name+"/"+depName]
			if !ok {
				// Satisfied by the ledger and left out of the plan.
				continue
			}
			dep.dependents = append(dep.dependents, n)
			n.depCount.Add(1)
		}
	}

	r.wg.Add(len(nodes))
	roots := 0
	for _, n := range nodes {
		if n.depCount.Load() == 0 {
			r.readyChan <- n
			roots++
		}
	}
	logger.Debug("Dispatching plan.",
		"units", len(nodes), "roots", roots, "workers", d.workers)

	for i := 0; i < d.workers; i++ {
		go r.worker(ctx, i)
	}
	r.wg.Wait()
	close(r.readyChan)

	var failed []string
	var rootCause error
	for _, u := range units {
		if u.State != plan.StateFailed {
			continue
		}
		failed = append(failed, u.ID())
		if rootCause == nil && u.Err != nil && !errors.Is(u.Err, context.Canceled) {
			rootCause = u.Err
		}
	}
	if len(failed) > 0 {
		if rootCause == nil {
			rootCause = context.Cause(ctx)
		}
		if rootCause == nil {
			rootCause = errors.New("run canceled")
		}
		return summary, &RunFailedError{Failed: failed, Cause: rootCause}
	}
	return summary, nil
}

// worker is the core processing loop for a single concurrent worker.
func (r *run) worker(ctx context.Context, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range r.readyChan {
		unit := n.unit
		unitCtx := ctxlog.WithUnit(ctx, unit.Scenario.Name, unit.Step.Name)
		unitLogger := ctxlog.FromContext(unitCtx)

		switch {
		case unit.State == plan.StateSkipped:
			// Planner marked it satisfied; it still unblocks dependents.
			unitLogger.Info("⏭️ Unit is up to date.")
			r.release(n)

		case ctx.Err() != nil:
			unit.State = plan.StateFailed
			unit.Err = ctx.Err()
			unitLogger.Warn("Context canceled, not starting unit.")
			r.notify(unit)
			r.skipDependents(ctx, n, "run canceled")

		case r.scenarios[unit.Scenario.Name].halted.Load():
			unit.State = plan.StateSkipped
			unit.Reason = "not started, scenario halted by earlier failure"
			unitLogger.Warn("Skipping unit, scenario halted by an earlier failure.")
			r.notify(unit)
			r.skipDependents(ctx, n, unit.Reason)

		default:
			r.execute(unitCtx, n)
		}
		r.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// execute runs one pending unit and settles its downstream edges.
func (r *run) execute(ctx context.Context, n *node) {
	unit := n.unit
	logger := ctxlog.FromContext(ctx)

	unit.State = plan.StateRunning
	logger.Info("▶️ Starting unit.")
	r.notify(unit)

	start := time.Now()
	err := r.d.runner.Run(ctx, unit)
	unit.Duration = time.Since(start)

	if err != nil {
		unit.State = plan.StateFailed
		unit.Err = err
		logger.Error("🔥 Unit failed.", "error", err, "duration", unit.Duration)
		r.notify(unit)
		if !r.d.continueOnError {
			r.scenarios[unit.Scenario.Name].halted.Store(true)
		}
		r.skipDependents(ctx, n, fmt.Sprintf("upstream failure of %q", unit.Step.Name))
		return
	}

	unit.State = plan.StateSucceeded
	logger.Info("✅ Unit finished.", "duration", unit.Duration)
	r.notify(unit)
	r.release(n)
}

// release unblocks the node's dependents, queueing any that become ready.
func (r *run) release(n *node) {
	for _, dependent := range n.dependents {
		if dependent.depCount.Add(-1) == 0 {
			r.readyChan <- dependent
		}
	}
}

// notify reports a state change to the configured observer.
func (r *run) notify(unit *plan.RunUnit) {
	if r.d.onTransition != nil {
		r.d.onTransition(unit)
	}
}

// skipDependents recursively marks downstream units skipped. Each is settled
// exactly once even when several upstream paths fail.
func (r *run) skipDependents(ctx context.Context, n *node, reason string) {
	logger := ctxlog.FromContext(ctx)
	for _, dependent := range n.dependents {
		dependent.skipOnce.Do(func() {
			logger.Warn("Skipping dependent unit.", "unit", dependent.unit.ID(), "reason", reason)
			dependent.unit.State = plan.StateSkipped
			dependent.unit.Reason = reason
			r.notify(dependent.unit)
			r.wg.Done()
			r.skipDependents(ctx, dependent, reason)
		})
	}
}
