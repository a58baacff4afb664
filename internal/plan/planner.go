package plan

import (
	"context"

	"github.com/vk/scengridgo/internal/ctxlog"
)

// Plan computes the ordered run units a request selects from the given
// per-scenario DAGs. dags must arrive in scenario declaration order; units
// come out per-scenario topological, scenarios in declaration order, so a
// given input set always dispatches identically.
//
// Ledger-satisfied units (success recorded at the current fingerprint) are
// emitted pre-marked skipped so summaries can report them; they are never
// dispatched. A request that selects nothing fails with
// NoMatchingStepsError unless the caller passed an explicitly empty
// scenario set.
func Plan(ctx context.Context, req Request, dags []*StepDAG, ledger LedgerReader) ([]*RunUnit, error) {
	logger := ctxlog.FromContext(ctx)

	selected := selectScenarios(ctx, req, dags)
	logger.Debug("Planning run units.",
		"scenarios", len(selected),
		"requested_steps", req.Steps,
		"force", req.Force)

	var units []*RunUnit
	for _, dag := range selected {
		units = append(units, planScenario(req, dag, ledger)...)
	}

	if len(units) == 0 {
		if req.ScenariosSet && len(req.Scenarios) == 0 {
			logger.Debug("Explicitly empty scenario set, returning empty plan.")
			return nil, nil
		}
		return nil, &NoMatchingStepsError{Scenarios: req.Scenarios, Steps: req.Steps}
	}
	return units, nil
}

// selectScenarios applies the scenario restriction, preserving declaration
// order regardless of request order.
func selectScenarios(ctx context.Context, req Request, dags []*StepDAG) []*StepDAG {
	logger := ctxlog.FromContext(ctx)

	if !req.ScenariosSet {
		var selected []*StepDAG
		for _, dag := range dags {
			if dag.Scenario.Active {
				selected = append(selected, dag)
			}
		}
		return selected
	}

	requested := make(map[string]bool, len(req.Scenarios))
	for _, name := range req.Scenarios {
		requested[name] = true
	}

	var selected []*StepDAG
	for _, dag := range dags {
		if !requested[dag.Scenario.Name] {
			continue
		}
		delete(requested, dag.Scenario.Name)
		if !dag.Scenario.Active && !req.Force {
			logger.Warn("Skipping explicitly requested inactive scenario; pass force to run it.",
				"scenario", dag.Scenario.Name)
			continue
		}
		selected = append(selected, dag)
	}

	for name := range requested {
		logger.Warn("Requested scenario has no plannable configuration.", "scenario", name)
	}
	return selected
}

// planScenario seeds the selection (requested steps, or run-by-default
// steps), pulls in unmet transitive dependencies, and emits the scenario's
// units in topological order.
func planScenario(req Request, dag *StepDAG, ledger LedgerReader) []*RunUnit {
	var seeds []*Node
	if len(req.Steps) > 0 {
		want := make(map[string]bool, len(req.Steps))
		for _, name := range req.Steps {
			want[name] = true
		}
		for _, n := range dag.Nodes() {
			if want[n.Step.Name] {
				seeds = append(seeds, n)
			}
		}
	} else {
		for _, n := range dag.Nodes() {
			if n.Step.RunDefault {
				seeds = append(seeds, n)
			}
		}
	}

	states := make(map[*Node]State)
	var visit func(n *Node)
	visit = func(n *Node) {
		if _, done := states[n]; done {
			return
		}
		if !req.Force && satisfied(dag, n, ledger) {
			// A met unit needs no re-run and its own dependencies stay out
			// of the plan entirely.
			states[n] = StateSkipped
			return
		}
		states[n] = StatePending
		for _, dep := range n.Deps {
			visit(dep)
		}
	}
	for _, seed := range seeds {
		visit(seed)
	}

	var units []*RunUnit
	for _, n := range dag.Nodes() {
		state, ok := states[n]
		if !ok {
			continue
		}
		unit := &RunUnit{
			Scenario:    dag.Scenario,
			Step:        n.Step,
			Config:      dag.Config,
			Fingerprint: dag.Fingerprint,
			State:       state,
		}
		if state == StateSkipped {
			unit.Reason = "up to date"
		}
		units = append(units, unit)
	}
	return units
}

func satisfied(dag *StepDAG, n *Node, ledger LedgerReader) bool {
	if ledger == nil || dag.Fingerprint == "" {
		return false
	}
	fp, ok := ledger.SucceededFingerprint(dag.Scenario.Name, n.Step.Name)
	return ok && fp == dag.Fingerprint
}
