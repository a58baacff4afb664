package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/delta"
	"github.com/vk/scengridgo/internal/dispatch"
	"github.com/vk/scengridgo/internal/ledger"
	"github.com/vk/scengridgo/internal/plan"
	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/scenario"
	"github.com/vk/scengridgo/internal/workspace"
)

// Run executes the pipeline: load the project, resolve the scenario graph,
// materialize per-scenario configurations, plan, then dispatch. A dry run
// stops after printing the plan.
func (a *App) Run(ctx context.Context) error {
	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("App.Run method started.", "mode", a.config.Mode, "project", a.config.ProjectPath)

	proj, err := project.Load(ctx, a.config.ProjectPath)
	if err != nil {
		return err
	}
	if err := a.registry.ValidateSteps(ctx, proj.Steps); err != nil {
		return err
	}

	doc, err := scenario.ParseFile(proj.ScenarioFile)
	if err != nil {
		return err
	}
	graph, err := scenario.Resolve(doc)
	if err != nil {
		return err
	}
	logger.Debug("Scenario graph resolved.", "scenarios", len(graph.All()))

	dags, disabled, err := a.buildDAGs(ctx, proj, graph)
	if err != nil {
		return err
	}

	req, err := a.buildRequest(proj)
	if err != nil {
		return err
	}

	ledgerPath := a.config.LedgerPath
	if ledgerPath == "" {
		ledgerPath = filepath.Join(proj.Workspace, ".scengrid", "ledger.json")
	}
	led, err := ledger.Open(ledgerPath, runID)
	if err != nil {
		return err
	}

	units, err := plan.Plan(ctx, req, dags, led)
	if err != nil {
		return err
	}
	logger.Debug("Plan computed.", "units", len(units))

	if a.config.DryRun {
		if err := a.printPlan(proj, units); err != nil {
			return err
		}
		return disabledError(disabled)
	}
	if len(units) == 0 {
		logger.Warn("No units selected, execution not required.")
		return disabledError(disabled)
	}

	manager := workspace.NewManager(proj)
	runner, opts, err := a.buildRunner(proj, manager, led, units, runID)
	if err != nil {
		return err
	}

	var status *statusServer
	if a.config.StatusPort > 0 {
		status = newStatusServer(logger, runID, proj.Name, units)
		opts.OnTransition = status.unitChanged
	}

	logger.Info("🚀 Starting execution.",
		"units", len(units), "mode", a.config.Mode, "workers", opts.Workers)

	var summary *dispatch.Summary
	var runErr error
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()
	if status != nil {
		g.Go(func() error {
			// A status server failure is logged, never fatal to the run.
			if err := status.serve(serveCtx, a.config.StatusPort); err != nil {
				logger.Error("🩺 Status server failed.", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer stopServing()
		summary, runErr = dispatch.New(runner, opts).Run(gctx, units)
		return nil
	})
	_ = g.Wait()

	fmt.Fprintln(a.outW, summary.String())
	logger.Info("🏁 Execution finished.",
		"succeeded", summary.Count(plan.StateSucceeded),
		"failed", summary.Count(plan.StateFailed),
		"skipped", summary.Count(plan.StateSkipped))

	if runErr != nil {
		return runErr
	}
	return disabledError(disabled)
}

// buildDAGs materializes every scenario's configuration and builds its step
// DAG. A configuration error disables that scenario only; graph errors
// abort.
func (a *App) buildDAGs(ctx context.Context, proj *project.Project, graph *scenario.Graph) ([]*plan.StepDAG, []string, error) {
	logger := ctxlog.FromContext(ctx)
	src := &delta.FileSource{Dir: proj.DeltaDir}

	var dags []*plan.StepDAG
	var disabled []string
	for _, sc := range graph.All() {
		cfg, err := delta.Materialize(ctx, sc, graph, src)
		if err != nil {
			logger.Error("🔥 Scenario configuration is invalid, disabling it for this run.",
				"scenario", sc.Name, "error", err)
			disabled = append(disabled, sc.Name)
			continue
		}
		dag, err := plan.BuildDAG(proj.Steps, sc, proj.Groups)
		if err != nil {
			return nil, nil, err
		}
		fingerprint, err := cfg.Fingerprint()
		if err != nil {
			return nil, nil, fmt.Errorf("fingerprint scenario %q: %w", sc.Name, err)
		}
		dag.Config = cfg
		dag.Fingerprint = fingerprint
		dags = append(dags, dag)
	}
	return dags, disabled, nil
}

// buildRequest translates the invocation's selection flags into a plan
// request, expanding a group name into its member scenarios.
func (a *App) buildRequest(proj *project.Project) (plan.Request, error) {
	req := plan.Request{
		Scenarios:    a.config.Scenarios,
		ScenariosSet: a.config.ScenariosSet,
		Steps:        a.config.Steps,
		Force:        a.config.Force,
	}
	if a.config.Group != "" {
		members, ok := proj.Groups[a.config.Group]
		if !ok {
			return plan.Request{}, fmt.Errorf("project defines no scenario group %q", a.config.Group)
		}
		req.Scenarios = members
		req.ScenariosSet = true
	}
	return req, nil
}

// buildRunner picks the unit runner for the configured mode. In cluster mode
// every unit gets its own worker slot: a poll loop is a cheap blocked
// goroutine, and queue occupancy is bounded separately by max_queued_jobs.
func (a *App) buildRunner(proj *project.Project, manager *workspace.Manager, led *ledger.Ledger, units []*plan.RunUnit, runID string) (dispatch.UnitRunner, dispatch.Options, error) {
	opts := dispatch.Options{
		Workers:         a.config.Workers,
		ContinueOnError: a.config.ContinueOnError,
	}
	if a.config.Mode != ModeCluster {
		return dispatch.NewLocalRunner(a.registry, proj, manager, led, runID), opts, nil
	}

	queue, err := buildQueueSpec(a.settings.Queue, proj.Queue)
	if err != nil {
		return nil, opts, err
	}
	runner, err := dispatch.NewClusterRunner(manager, led, dispatch.ClusterOptions{
		Queue:         queue,
		ProjectPath:   a.config.ProjectPath,
		LedgerPath:    led.Path(),
		Force:         a.config.Force,
		MaxQueuedJobs: a.settings.Queue.MaxQueuedJobs,
	})
	if err != nil {
		return nil, opts, err
	}
	opts.Workers = len(units)
	return runner, opts, nil
}

// printPlan renders the dry-run table: one line per unit, and in cluster
// mode the exact submit command each pending unit would get.
func (a *App) printPlan(proj *project.Project, units []*plan.RunUnit) error {
	a.logger.Info("🔍 Dry run, nothing will be executed.", "units", len(units))

	var cluster *dispatch.ClusterRunner
	if a.config.Mode == ModeCluster {
		queue, err := buildQueueSpec(a.settings.Queue, proj.Queue)
		if err != nil {
			return err
		}
		cluster, err = dispatch.NewClusterRunner(workspace.NewManager(proj), nil, dispatch.ClusterOptions{
			Queue:       queue,
			ProjectPath: a.config.ProjectPath,
			Force:       a.config.Force,
		})
		if err != nil {
			return err
		}
	}

	w := tabwriter.NewWriter(a.outW, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UNIT\tACTION\tPLAN")
	for _, u := range units {
		disposition := "run"
		if u.State == plan.StateSkipped {
			disposition = "skip (" + u.Reason + ")"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID(), u.Step.ActionType, disposition)
		if cluster != nil && u.State != plan.StateSkipped {
			cmd, err := cluster.SubmitCommand(u)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "\t\tsubmit: %s\n", cmd)
		}
	}
	return w.Flush()
}

func disabledError(disabled []string) error {
	if len(disabled) == 0 {
		return nil
	}
	return fmt.Errorf("%d scenario(s) disabled by configuration errors: %s",
		len(disabled), strings.Join(disabled, ", "))
}
