package setupxml

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/delta"
	"github.com/vk/scengridgo/internal/fsutil"
	"github.com/vk/scengridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the 'setup_xml' action.
type Input struct {
	// Strict turns an edit whose path matches nothing into an error instead
	// of a logged warning.
	Strict bool `hcl:"strict,optional"`
}

// OnRunSetupXML applies the unit's materialized configuration to the input
// files in the scenario sandbox: each addressed file is localized (a
// reference symlink is replaced by a private copy, so the shared reference
// tree is never modified) and the scenario's edits and inserts are applied
// to it.
// generators maps the <generator> element of a scenario declaration to a
// synthesis strategy. "static-xml" is the copy-then-edit path below; an
// empty tag means the same. Other methods are not compiled in.
var generators = map[string]bool{
	"":           true,
	"static-xml": true,
}

func OnRunSetupXML(ctx context.Context, rc *registry.RunContext, input *Input) (*registry.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	if rc.Config == nil {
		return nil, fmt.Errorf("setup_xml: unit carries no materialized configuration")
	}
	if !generators[rc.Scenario.Generator] {
		return nil, fmt.Errorf("setup_xml: scenario %q declares unknown generator %q", rc.Scenario.Name, rc.Scenario.Generator)
	}

	files := rc.Config.Files()
	changed := 0
	for _, rel := range files {
		path, err := localize(rc, rel)
		if err != nil {
			return nil, err
		}

		edits, inserts := rc.Config.EditsForFile(rel)
		res, err := delta.ApplyToFile(path, edits, inserts)
		if err != nil {
			return nil, fmt.Errorf("setup_xml: %w", err)
		}
		changed += res.Changed

		for _, miss := range res.Unmatched {
			if input.Strict {
				return nil, fmt.Errorf("setup_xml: edit %s %s matches nothing", miss.File, miss.Path)
			}
			logger.Warn("Edit path matched no element.", "file", miss.File, "path", miss.Path)
			fmt.Fprintf(rc.Log, "warning: edit %s %s matched no element\n", miss.File, miss.Path)
		}

		fmt.Fprintf(rc.Log, "applied %d change(s) to %s\n", res.Changed, rel)
		logger.Debug("Input file configured.", "file", rel, "changed", res.Changed)
	}

	return &registry.Outcome{
		Detail: fmt.Sprintf("%d change(s) across %d file(s): %s", changed, len(files), strings.Join(files, ", ")),
	}, nil
}

// localize makes sure the sandbox holds a private, writable copy of the
// input file. A symlink into the reference tree is replaced by a copy of its
// target; a file absent from the sandbox is copied in from the reference
// directory.
func localize(rc *registry.RunContext, rel string) (string, error) {
	path := filepath.Join(rc.Sandbox.Dir, rel)

	info, err := os.Lstat(path)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		target, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", fmt.Errorf("setup_xml: resolve link %q: %w", path, err)
		}
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("setup_xml: unlink %q: %w", path, err)
		}
		if err := fsutil.CopyFile(target, path); err != nil {
			return "", fmt.Errorf("setup_xml: localize %q: %w", rel, err)
		}
	case os.IsNotExist(err):
		src := filepath.Join(rc.Project.ReferenceDir, rel)
		if err := fsutil.CopyFile(src, path); err != nil {
			return "", fmt.Errorf("setup_xml: input file %q is neither in the sandbox nor the reference directory: %w", rel, err)
		}
	case err != nil:
		return "", fmt.Errorf("setup_xml: inspect %q: %w", path, err)
	}
	return path, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("setup_xml", &registry.RegisteredAction{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunSetupXML,
	})
}
