package delta

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/scenario"
)

// ConcreteConfig is the flattened configuration for exactly one scenario:
// the surviving edits, inserts, and vars after folding its ancestor chain
// root to leaf. Slices are sorted, so two materializations of unchanged
// inputs are byte-identical under Canonical.
type ConcreteConfig struct {
	Scenario string   `json:"scenario"`
	Chain    []string `json:"chain"`
	Edits    []Edit   `json:"edits"`
	Inserts  []Insert `json:"inserts"`
	Vars     []Var    `json:"vars"`
}

// Var looks up a substitution variable by name.
func (c *ConcreteConfig) Var(name string) (string, bool) {
	for _, v := range c.Vars {
		if v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}

// VarMap returns the substitution variables as a map for interpolation.
func (c *ConcreteConfig) VarMap() map[string]string {
	m := make(map[string]string, len(c.Vars))
	for _, v := range c.Vars {
		m[v.Name] = v.Value
	}
	return m
}

// EditsForFile returns the edits and inserts addressed to one input file,
// preserving the canonical order.
func (c *ConcreteConfig) EditsForFile(file string) ([]Edit, []Insert) {
	var edits []Edit
	for _, e := range c.Edits {
		if e.File == file {
			edits = append(edits, e)
		}
	}
	var inserts []Insert
	for _, i := range c.Inserts {
		if i.File == file {
			inserts = append(inserts, i)
		}
	}
	return edits, inserts
}

// Files returns every input file named by an edit or insert, sorted.
func (c *ConcreteConfig) Files() []string {
	seen := map[string]bool{}
	var files []string
	for _, e := range c.Edits {
		if !seen[e.File] {
			seen[e.File] = true
			files = append(files, e.File)
		}
	}
	for _, i := range c.Inserts {
		if !seen[i.File] {
			seen[i.File] = true
			files = append(files, i.File)
		}
	}
	sort.Strings(files)
	return files
}

// Canonical returns the deterministic JSON encoding of the configuration.
// Field order is fixed by the struct and slice order is fixed by
// Materialize, so unchanged inputs yield identical bytes.
func (c *ConcreteConfig) Canonical() ([]byte, error) {
	return json.Marshal(c)
}

// Fingerprint returns the sha256 hex of the canonical encoding. The run
// ledger stores it to detect configuration drift.
func (c *ConcreteConfig) Fingerprint() (string, error) {
	b, err := c.Canonical()
	if err != nil {
		return "", fmt.Errorf("canonicalize config for %s: %w", c.Scenario, err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// structural reports whether a chain member is permitted to carry no delta
// set: reference roots supply identity inputs only, and generator-backed
// scenarios synthesize their inputs instead of delta-editing them.
func structural(sc *scenario.Scenario) bool {
	return sc.Type == scenario.TypeReference || sc.Generator != ""
}

// Materialize folds the ancestor chain of sc root to leaf into a
// ConcreteConfig. Later (child) entries override earlier (ancestor) entries
// with the same key; keys absent from a child survive from the ancestor.
// The transform is pure: calling it twice on unchanged inputs yields equal
// Canonical bytes.
func Materialize(ctx context.Context, sc *scenario.Scenario, g *scenario.Graph, src Source) (*ConcreteConfig, error) {
	log := ctxlog.FromContext(ctx)

	chain, err := g.Chain(sc.Name)
	if err != nil {
		return nil, err
	}

	edits := map[string]Edit{}
	inserts := map[string]Insert{}
	vars := map[string]Var{}
	chainNames := make([]string, len(chain))

	for i, anc := range chain {
		chainNames[i] = anc.Name

		set, err := src.Load(ctx, anc.Name)
		if errors.Is(err, ErrNotFound) {
			if structural(anc) {
				log.Debug("Chain member is structural, no delta set", "scenario", sc.Name, "ancestor", anc.Name)
				continue
			}
			return nil, &MissingDeltaSourceError{Scenario: sc.Name, Ancestor: anc.Name}
		}
		if err != nil {
			return nil, fmt.Errorf("load deltas for %q: %w", anc.Name, err)
		}

		log.Debug("Folding delta set",
			"scenario", sc.Name,
			"ancestor", anc.Name,
			"edits", len(set.Edits),
			"inserts", len(set.Inserts),
			"vars", len(set.Vars))

		for _, e := range set.Edits {
			edits[e.Key()] = e
		}
		for _, ins := range set.Inserts {
			inserts[ins.Key()] = ins
		}
		for _, v := range set.Vars {
			vars[v.Name] = v
		}
	}

	cfg := &ConcreteConfig{
		Scenario: sc.Name,
		Chain:    chainNames,
		Edits:    make([]Edit, 0, len(edits)),
		Inserts:  make([]Insert, 0, len(inserts)),
		Vars:     make([]Var, 0, len(vars)),
	}
	for _, e := range edits {
		cfg.Edits = append(cfg.Edits, e)
	}
	for _, ins := range inserts {
		cfg.Inserts = append(cfg.Inserts, ins)
	}
	for _, v := range vars {
		cfg.Vars = append(cfg.Vars, v)
	}

	sort.Slice(cfg.Edits, func(i, j int) bool {
		if cfg.Edits[i].File != cfg.Edits[j].File {
			return cfg.Edits[i].File < cfg.Edits[j].File
		}
		return cfg.Edits[i].Path < cfg.Edits[j].Path
	})
	sort.Slice(cfg.Inserts, func(i, j int) bool {
		if cfg.Inserts[i].File != cfg.Inserts[j].File {
			return cfg.Inserts[i].File < cfg.Inserts[j].File
		}
		return cfg.Inserts[i].Path < cfg.Inserts[j].Path
	})
	sort.Slice(cfg.Vars, func(i, j int) bool { return cfg.Vars[i].Name < cfg.Vars[j].Name })

	return cfg, nil
}
