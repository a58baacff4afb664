// Package testutil scaffolds throwaway projects for integration tests: a
// project file, a scenario document, delta files, and a reference tree laid
// out in a temp directory, plus recording action modules to observe what the
// engine dispatched.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// ProjectFixture describes a throwaway project to lay out on disk.
type ProjectFixture struct {
	// Name is the project name. Defaults to "testproj".
	Name string

	// ScenariosXML is the scenario document body. Required.
	ScenariosXML string

	// Deltas maps scenario name to delta-file XML body. Scenarios without
	// an entry get no delta file.
	Deltas map[string]string

	// ReferenceFiles maps relative path to content for the reference tree.
	ReferenceFiles map[string]string

	// Groups maps group name to member scenarios, emitted in sorted order.
	Groups map[string][]string

	// StepBlocks are verbatim HCL step blocks, emitted in order.
	StepBlocks []string

	// QueueBlock is a verbatim HCL queue block, emitted when non-empty.
	QueueBlock string
}

// Project is the on-disk result of writing a ProjectFixture.
type Project struct {
	Dir         string
	ProjectPath string
	Workspace   string
	LedgerPath  string
}

// WriteProject lays the fixture out under a temp directory and returns the
// resulting paths. The layout matches what the loader expects: scenarios.xml,
// deltas/, reference/, and workspace/ beside the project file.
func WriteProject(t *testing.T, fx ProjectFixture) *Project {
	t.Helper()

	if fx.Name == "" {
		fx.Name = "testproj"
	}
	require.NotEmpty(t, fx.ScenariosXML, "fixture needs a scenario document")

	dir := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	write("scenarios.xml", fx.ScenariosXML)
	for name, body := range fx.Deltas {
		write(filepath.Join("deltas", name+".xml"), body)
	}
	refFiles := make([]string, 0, len(fx.ReferenceFiles))
	for rel, content := range fx.ReferenceFiles {
		write(filepath.Join("reference", rel), content)
		refFiles = append(refFiles, rel)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "reference"), 0o755))

	var b strings.Builder
	fmt.Fprintf(&b, "project %q {\n", fx.Name)
	b.WriteString("  scenario_file = \"scenarios.xml\"\n")
	b.WriteString("  delta_dir     = \"deltas\"\n")
	b.WriteString("  reference_dir = \"reference\"\n")
	b.WriteString("  workspace     = \"workspace\"\n")
	if len(refFiles) > 0 {
		fmt.Fprintf(&b, "  reference_files = [%s]\n", quoteList(refFiles))
	}
	b.WriteString("}\n\n")

	for _, name := range sortedKeys(fx.Groups) {
		fmt.Fprintf(&b, "group %q {\n  members = [%s]\n}\n\n", name, quoteList(fx.Groups[name]))
	}
	for _, block := range fx.StepBlocks {
		b.WriteString(strings.TrimSpace(block))
		b.WriteString("\n\n")
	}
	if fx.QueueBlock != "" {
		b.WriteString(strings.TrimSpace(fx.QueueBlock))
		b.WriteString("\n")
	}
	write("project.hcl", b.String())

	return &Project{
		Dir:         dir,
		ProjectPath: filepath.Join(dir, "project.hcl"),
		Workspace:   filepath.Join(dir, "workspace"),
		LedgerPath:  filepath.Join(dir, "workspace", ".scengrid", "ledger.json"),
	}
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return strings.Join(quoted, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
