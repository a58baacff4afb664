// Package ledger persists step successes so later invocations can skip work
// whose configuration fingerprint has not changed. One JSON file per
// workspace, shared by concurrent invocations on the same filesystem.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vk/scengridgo/internal/fsutil"
)

const fileVersion = 1

// Entry records one successful (scenario, step) run.
type Entry struct {
	Scenario    string    `json:"scenario"`
	Step        string    `json:"step"`
	Fingerprint string    `json:"fingerprint"`
	SucceededAt time.Time `json:"succeeded_at"`
	RunID       string    `json:"run_id"`
}

type key struct {
	scenario string
	step     string
}

type fileFormat struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// Ledger is the handle to the workspace ledger file. Safe for concurrent use
// from one process; concurrent processes are serialized by a sibling .lock
// file around every mutation.
type Ledger struct {
	path  string
	runID string

	lockTimeout    time.Duration
	lockStaleAfter time.Duration

	mu      sync.Mutex
	entries map[key]Entry
}

// Open loads the ledger at path, creating parent directories as needed. A
// missing file is an empty ledger; an unreadable or malformed file is an
// error, never silently reset. runID is stamped on entries this process
// writes.
func Open(path, runID string) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}
	entries, err := readEntries(path)
	if err != nil {
		return nil, err
	}
	return &Ledger{
		path:           path,
		runID:          runID,
		lockTimeout:    45 * time.Second,
		lockStaleAfter: 30 * time.Second,
		entries:        entries,
	}, nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Lookup returns the recorded success for (scenario, step), if any.
func (l *Ledger) Lookup(scenario, step string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key{scenario, step}]
	return e, ok
}

// SucceededFingerprint reports the fingerprint of the recorded success for
// (scenario, step). It is the planner's view of the ledger.
func (l *Ledger) SucceededFingerprint(scenario, step string) (string, bool) {
	e, ok := l.Lookup(scenario, step)
	return e.Fingerprint, ok
}

// Entries returns every recorded success, sorted by scenario then step.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sortedEntries(l.entries)
}

// Reload refreshes the in-memory view from disk. Used after another process
// may have written, e.g. when a cluster job's remote invocation records its
// own success.
func (l *Ledger) Reload() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, err := readEntries(l.path)
	if err != nil {
		return err
	}
	l.entries = entries
	return nil
}

// MarkSucceeded records a success for (scenario, step) at the given
// fingerprint, replacing any previous entry for the pair.
func (l *Ledger) MarkSucceeded(scenario, step, fingerprint string) error {
	entry := Entry{
		Scenario:    scenario,
		Step:        step,
		Fingerprint: fingerprint,
		SucceededAt: time.Now().UTC(),
		RunID:       l.runID,
	}
	return l.mutate(func(entries map[key]Entry) {
		entries[key{scenario, step}] = entry
	})
}

// InvalidateScenario drops every entry recorded for the named scenario.
func (l *Ledger) InvalidateScenario(name string) error {
	return l.mutate(func(entries map[key]Entry) {
		for k := range entries {
			if k.scenario == name {
				delete(entries, k)
			}
		}
	})
}

// mutate serializes a cross-process read-modify-write: take the lock file,
// re-read the current contents (another process may have written since we
// loaded), apply the change, replace the file atomically. The in-memory view
// is left at the merged state.
func (l *Ledger) mutate(apply func(map[key]Entry)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, err := fsutil.AcquireLock(l.path+".lock", l.lockTimeout, l.lockStaleAfter)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	defer lock.Release()

	onDisk, err := readEntries(l.path)
	if err != nil {
		return err
	}
	apply(onDisk)
	if err := writeEntries(l.path, onDisk); err != nil {
		return err
	}
	l.entries = onDisk
	return nil
}

func readEntries(path string) (map[key]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[key]Entry{}, nil
		}
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	defer f.Close()

	var file fileFormat
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("ledger: corrupt file %s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("ledger: corrupt file %s: trailing content", path)
	}
	if file.Version != fileVersion {
		return nil, fmt.Errorf("ledger: file %s has version %d, want %d", path, file.Version, fileVersion)
	}

	entries := make(map[key]Entry, len(file.Entries))
	for _, e := range file.Entries {
		if e.Scenario == "" || e.Step == "" {
			return nil, fmt.Errorf("ledger: corrupt file %s: entry missing scenario or step", path)
		}
		entries[key{e.Scenario, e.Step}] = e
	}
	return entries, nil
}

func writeEntries(path string, entries map[key]Entry) error {
	file := fileFormat{Version: fileVersion, Entries: sortedEntries(entries)}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshal: %w", err)
	}
	data = append(data, '\n')
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("ledger: write %s: %w", path, err)
	}
	return nil
}

func sortedEntries(entries map[key]Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Scenario != out[j].Scenario {
			return out[i].Scenario < out[j].Scenario
		}
		return out[i].Step < out[j].Step
	})
	return out
}

// writeFileAtomic replaces path via a temp file in the same directory,
// synced before the rename so a crash never leaves a partial ledger.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
