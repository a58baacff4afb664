// Package scenario resolves declared simulation scenarios into an
// inheritance forest and answers ancestor-chain queries against it.
package scenario

import "fmt"

// Type classifies a scenario's role in its inheritance chain.
type Type string

const (
	// TypeReference marks a chain root carrying the unmodified model inputs.
	TypeReference Type = "reference"
	// TypeBaseline marks a scenario that establishes a policy baseline
	// relative to its reference ancestor.
	TypeBaseline Type = "baseline"
	// TypeDerived marks a scenario that perturbs its parent. The default.
	TypeDerived Type = "derived"
)

// ParseType maps a declaration attribute to a Type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeReference, TypeBaseline, TypeDerived:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown scenario type %q (want reference, baseline, or derived)", s)
	}
}

// Scenario is one resolved node of the inheritance forest. Instances are
// created by Resolve and immutable afterwards.
type Scenario struct {
	Name        string
	Parent      *Scenario // nil for chain roots
	Subdir      string    // working-directory segment, defaults to Name
	Type        Type
	Active      bool
	Generator   string // synthesis method for generator-backed scenarios
	Description string

	index int // declaration position, drives deterministic ordering
}

// Root walks parent links to the top of this scenario's chain.
func (s *Scenario) Root() *Scenario {
	node := s
	for node.Parent != nil {
		node = node.Parent
	}
	return node
}

// Graph is the resolved, validated scenario forest.
type Graph struct {
	byName map[string]*Scenario
	order  []*Scenario // declaration order
}

// Scenario looks up a scenario by name.
func (g *Graph) Scenario(name string) (*Scenario, bool) {
	sc, ok := g.byName[name]
	return sc, ok
}

// All returns every scenario in declaration order.
func (g *Graph) All() []*Scenario {
	out := make([]*Scenario, len(g.order))
	copy(out, g.order)
	return out
}

// Names returns every scenario name in declaration order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.order))
	for i, sc := range g.order {
		names[i] = sc.Name
	}
	return names
}

// Roots returns the parentless scenarios in declaration order.
func (g *Graph) Roots() []*Scenario {
	var roots []*Scenario
	for _, sc := range g.order {
		if sc.Parent == nil {
			roots = append(roots, sc)
		}
	}
	return roots
}

// Chain returns the ancestor chain for name ordered root first, the named
// scenario last. Chains include inactive ancestors: the active flag controls
// planning, not inheritance.
func (g *Graph) Chain(name string) ([]*Scenario, error) {
	sc, ok := g.byName[name]
	if !ok {
		return nil, graphErrorf("unknown scenario %q", name)
	}
	var chain []*Scenario
	for node := sc; node != nil; node = node.Parent {
		chain = append(chain, node)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}
