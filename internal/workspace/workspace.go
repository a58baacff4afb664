// Package workspace lays out per-scenario sandboxes under the project
// workspace: reference files linked or copied in, exe/logs and output
// directories, and a creation semaphore so a partially built sandbox is
// detected and rebuilt on the next attempt.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/fsutil"
	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/scenario"
)

const semaphoreName = ".creation_semaphore"

// Sandbox holds the resolved paths of one scenario's working directory.
type Sandbox struct {
	Scenario string
	Dir      string
	ExeDir   string
	LogDir   string
	OutDir   string
}

// Manager creates and locates sandboxes for one project.
type Manager struct {
	workspace string
	refDir    string
	files     []string
	groupOf   map[string]string

	lockTimeout    time.Duration
	lockStaleAfter time.Duration
}

// NewManager builds a Manager from the project's layout. When a scenario is
// a member of several groups, the first declaring group names its directory
// level. A project that declares no reference_files gets every XML input
// found in its reference tree.
func NewManager(proj *project.Project) *Manager {
	groupOf := make(map[string]string)
	for _, name := range proj.GroupOrder {
		for _, member := range proj.Groups[name] {
			if _, ok := groupOf[member]; !ok {
				groupOf[member] = name
			}
		}
	}
	return &Manager{
		workspace:      proj.Workspace,
		refDir:         proj.ReferenceDir,
		files:          referenceFiles(proj),
		groupOf:        groupOf,
		lockTimeout:    45 * time.Second,
		lockStaleAfter: 30 * time.Second,
	}
}

func referenceFiles(proj *project.Project) []string {
	if len(proj.ReferenceFiles) > 0 || proj.ReferenceDir == "" {
		return proj.ReferenceFiles
	}
	found, err := fsutil.FindFilesByExtension(proj.ReferenceDir, ".xml")
	if err != nil {
		// Sandbox creation reports the unreadable reference tree itself.
		return nil
	}
	files := make([]string, 0, len(found))
	for _, path := range found {
		if rel, err := filepath.Rel(proj.ReferenceDir, path); err == nil {
			files = append(files, rel)
		}
	}
	return files
}

// Dir returns the sandbox directory for a scenario: the workspace root,
// then the scenario's group level if it has one, then its subdir.
func (m *Manager) Dir(sc *scenario.Scenario) string {
	if group, ok := m.groupOf[sc.Name]; ok {
		return filepath.Join(m.workspace, group, sc.Subdir)
	}
	return filepath.Join(m.workspace, sc.Subdir)
}

// Sandbox resolves the scenario's sandbox paths without touching the
// filesystem.
func (m *Manager) Sandbox(sc *scenario.Scenario) Sandbox {
	dir := m.Dir(sc)
	exe := filepath.Join(dir, "exe")
	return Sandbox{
		Scenario: sc.Name,
		Dir:      dir,
		ExeDir:   exe,
		LogDir:   filepath.Join(exe, "logs"),
		OutDir:   filepath.Join(dir, "output"),
	}
}

// Create builds the scenario's sandbox and returns its paths. Safe to call
// repeatedly: reference links are re-placed, everything else is left alone.
// A semaphore file marks creation in progress; finding one from an earlier
// run means that run died mid-build, so the sandbox is cleared and rebuilt.
// force clears it unconditionally.
func (m *Manager) Create(ctx context.Context, sc *scenario.Scenario, force bool) (Sandbox, error) {
	logger := ctxlog.FromContext(ctx)
	sb := m.Sandbox(sc)

	if err := os.MkdirAll(sb.Dir, 0o755); err != nil {
		return Sandbox{}, fmt.Errorf("workspace: create %q: %w", sb.Dir, err)
	}
	if sameDir(sb.Dir, m.refDir) {
		return Sandbox{}, fmt.Errorf("workspace: sandbox %q is the reference directory", sb.Dir)
	}

	semaphore := filepath.Join(sb.Dir, semaphoreName)
	lock, err := fsutil.AcquireLock(semaphore+".lock", m.lockTimeout, m.lockStaleAfter)
	if err != nil {
		return Sandbox{}, fmt.Errorf("workspace: %w", err)
	}
	defer lock.Release()

	if _, err := os.Lstat(semaphore); err == nil {
		logger.Warn("Sandbox was left half-built by an earlier run, recreating it.",
			"scenario", sc.Name, "dir", sb.Dir)
		force = true
	}
	if force {
		// Clear contents rather than the directory itself so the held lock
		// file survives.
		if err := clearDirExcept(sb.Dir, filepath.Base(lock.Path())); err != nil {
			return Sandbox{}, fmt.Errorf("workspace: clear %q: %w", sb.Dir, err)
		}
	}

	if err := os.WriteFile(semaphore, nil, 0o644); err != nil {
		return Sandbox{}, fmt.Errorf("workspace: mark creation of %q: %w", sb.Dir, err)
	}

	for _, dir := range []string{sb.LogDir, sb.OutDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Sandbox{}, fmt.Errorf("workspace: create %q: %w", dir, err)
		}
	}
	for _, rel := range m.files {
		src := filepath.Join(m.refDir, rel)
		dst := filepath.Join(sb.Dir, rel)
		if err := fsutil.LinkOrCopy(src, dst); err != nil {
			return Sandbox{}, fmt.Errorf("workspace: place reference file %q: %w", rel, err)
		}
	}

	if err := os.Remove(semaphore); err != nil {
		return Sandbox{}, fmt.Errorf("workspace: finish creation of %q: %w", sb.Dir, err)
	}
	logger.Debug("Sandbox ready.", "scenario", sc.Name, "dir", sb.Dir)
	return sb, nil
}

func sameDir(a, b string) bool {
	infoA, errA := os.Stat(a)
	infoB, errB := os.Stat(b)
	return errA == nil && errB == nil && os.SameFile(infoA, infoB)
}

func clearDirExcept(dir string, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
