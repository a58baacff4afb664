package queryrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'query' action.
type Input struct {
	// Command is the extraction command run once per query. The literal
	// placeholders {query} and {outfile} are replaced with the query name
	// and the per-query result path.
	Command string `hcl:"command"`

	// Queries are the named extractions to run against the model output.
	Queries []string `hcl:"queries"`

	// ResultDir is where result files go, relative to the sandbox output
	// directory. Defaults to "queries".
	ResultDir string `hcl:"result_dir,optional"`
}

// OnRunQuery runs the extraction command once per declared query, writing
// one result file per query under the sandbox output directory.
func OnRunQuery(ctx context.Context, rc *registry.RunContext, input *Input) (*registry.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	if len(input.Queries) == 0 {
		return nil, fmt.Errorf("query: at least one query is required")
	}

	resultDir := input.ResultDir
	if resultDir == "" {
		resultDir = "queries"
	}
	dir := filepath.Join(rc.Sandbox.OutDir, resultDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("query: create result directory %q: %w", dir, err)
	}

	for _, query := range input.Queries {
		outfile := filepath.Join(dir, query+".csv")
		command := strings.NewReplacer("{query}", query, "{outfile}", outfile).Replace(input.Command)

		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		cmd.Dir = rc.Sandbox.Dir
		cmd.Stdout = rc.Log
		cmd.Stderr = rc.Log

		logger.Info("Running query.", "query", query, "command", command)
		err := cmd.Run()

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("query %q exited with code %d", query, exitErr.ExitCode())
		}
		if err != nil {
			return nil, fmt.Errorf("run query %q: %w", query, err)
		}
	}

	return &registry.Outcome{
		Detail: fmt.Sprintf("%d quer(ies) into %s", len(input.Queries), dir),
	}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("query", &registry.RegisteredAction{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunQuery,
	})
}
