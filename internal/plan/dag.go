package plan

import (
	"github.com/vk/scengridgo/internal/delta"
	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/scenario"
)

// Node is one step instantiated for a scenario, with its dependency edges
// in the filtered graph.
type Node struct {
	Step       *project.Step
	Deps       []*Node
	Dependents []*Node

	index int // declaration position, the ordering tie-break
}

// StepDAG is the filtered, validated, topologically ordered step graph for
// one scenario. The pipeline attaches the scenario's materialized
// configuration before planning.
type StepDAG struct {
	Scenario    *scenario.Scenario
	Config      *delta.ConcreteConfig
	Fingerprint string

	nodes  []*Node // topological order, declaration-order tie-break
	byName map[string]*Node
}

// Nodes returns the DAG's nodes in execution order.
func (d *StepDAG) Nodes() []*Node {
	out := make([]*Node, len(d.nodes))
	copy(out, d.nodes)
	return out
}

// Node looks up a node by step name.
func (d *StepDAG) Node(name string) (*Node, bool) {
	n, ok := d.byName[name]
	return n, ok
}

// BuildDAG filters the project's steps to those applicable to sc, wires the
// depends_on edges, and returns the validated DAG. The node order is
// deterministic: a topological sort that breaks ties by declaration order.
func BuildDAG(steps []*project.Step, sc *scenario.Scenario, groups map[string][]string) (*StepDAG, error) {
	dag := &StepDAG{
		Scenario: sc,
		byName:   make(map[string]*Node),
	}

	var nodes []*Node
	for i, s := range steps {
		if !s.AppliesTo(sc, groups) {
			continue
		}
		n := &Node{Step: s, index: i}
		nodes = append(nodes, n)
		dag.byName[s.Name] = n
	}

	for _, n := range nodes {
		seen := make(map[string]bool, len(n.Step.DependsOn))
		for _, depName := range n.Step.DependsOn {
			if seen[depName] {
				continue
			}
			seen[depName] = true

			if depName == n.Step.Name {
				return nil, &CycleError{Scenario: sc.Name, Path: []string{n.Step.Name, n.Step.Name}}
			}
			dep, ok := dag.byName[depName]
			if !ok {
				return nil, &UnknownStepReferenceError{Scenario: sc.Name, Step: n.Step.Name, Ref: depName}
			}
			n.Deps = append(n.Deps, dep)
			dep.Dependents = append(dep.Dependents, n)
		}
	}

	order, err := topoSort(sc.Name, nodes)
	if err != nil {
		return nil, err
	}
	dag.nodes = order
	return dag, nil
}

// topoSort runs Kahn's algorithm, always dispatching the ready node with the
// smallest declaration index so the result is stable across runs.
func topoSort(scenarioName string, nodes []*Node) ([]*Node, error) {
	indeg := make(map[*Node]int, len(nodes))
	for _, n := range nodes {
		indeg[n] = len(n.Deps)
	}

	var ready []*Node
	for _, n := range nodes {
		if indeg[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]*Node, 0, len(nodes))
	for len(ready) > 0 {
		min := 0
		for i, n := range ready {
			if n.index < ready[min].index {
				min = i
			}
		}
		n := ready[min]
		ready = append(ready[:min], ready[min+1:]...)
		order = append(order, n)

		for _, dep := range n.Dependents {
			indeg[dep]--
			if indeg[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) < len(nodes) {
		remaining := make(map[*Node]bool)
		for _, n := range nodes {
			if indeg[n] > 0 {
				remaining[n] = true
			}
		}
		return nil, &CycleError{Scenario: scenarioName, Path: cyclePath(remaining)}
	}
	return order, nil
}

// cyclePath walks dependency edges inside the leftover node set until a node
// repeats, producing the loop for the error message.
func cyclePath(remaining map[*Node]bool) []string {
	var start *Node
	for n := range remaining {
		if start == nil || n.index < start.index {
			start = n
		}
	}
	if start == nil {
		return nil
	}

	pos := map[*Node]int{}
	var path []*Node
	cur := start
	for {
		if at, seen := pos[cur]; seen {
			loop := path[at:]
			names := make([]string, 0, len(loop)+1)
			for _, n := range loop {
				names = append(names, n.Step.Name)
			}
			names = append(names, cur.Step.Name)
			return names
		}
		pos[cur] = len(path)
		path = append(path, cur)

		next := cur
		for _, dep := range cur.Deps {
			if remaining[dep] {
				next = dep
				break
			}
		}
		cur = next
	}
}
