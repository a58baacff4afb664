package scenario

// Resolve validates the declarations in doc and links them into a Graph.
// Parent references may point forward in the document: nodes are created in
// a first pass and linked in a second. It is a pure transform with no side
// effects.
func Resolve(doc *Document) (*Graph, error) {
	defs := doc.Definitions()
	g := &Graph{byName: make(map[string]*Scenario, len(defs))}

	for i, def := range defs {
		if _, dup := g.byName[def.Name]; dup {
			return nil, &DuplicateNameError{Name: def.Name}
		}
		subdir := def.Subdir
		if subdir == "" {
			subdir = def.Name
		}
		sc := &Scenario{
			Name:        def.Name,
			Subdir:      subdir,
			Type:        def.Type,
			Active:      def.Active,
			Generator:   def.Generator,
			Description: def.Description,
			index:       i,
		}
		g.byName[def.Name] = sc
		g.order = append(g.order, sc)
	}

	for i, def := range defs {
		if def.Parent == "" {
			continue
		}
		parent, ok := g.byName[def.Parent]
		if !ok {
			return nil, &UnknownParentError{Scenario: def.Name, Parent: def.Parent}
		}
		g.order[i].Parent = parent
	}

	if err := detectCycle(g); err != nil {
		return nil, err
	}

	for _, sc := range g.order {
		switch {
		case sc.Type == TypeReference && sc.Parent != nil:
			return nil, graphErrorf("reference scenario %q must not declare parent %q", sc.Name, sc.Parent.Name)
		case sc.Type != TypeReference && sc.Parent == nil:
			return nil, graphErrorf("%s scenario %q has no reference or baseline ancestor", sc.Type, sc.Name)
		}
	}

	return g, nil
}

// detectCycle walks parent links from every node. Each node has at most one
// parent, so any cycle is a simple loop reachable by repeated ascent.
func detectCycle(g *Graph) error {
	const (
		white = iota // unvisited
		grey         // on the current ascent path
		black        // proven cycle-free
	)
	state := make(map[*Scenario]int, len(g.order))

	for _, start := range g.order {
		if state[start] != white {
			continue
		}
		var path []*Scenario
		node := start
		for node != nil && state[node] == white {
			state[node] = grey
			path = append(path, node)
			node = node.Parent
		}
		if node != nil && state[node] == grey {
			var names []string
			for i, p := range path {
				if p == node {
					for _, q := range path[i:] {
						names = append(names, q.Name)
					}
					break
				}
			}
			names = append(names, node.Name)
			return &CycleError{Path: names}
		}
		for _, p := range path {
			state[p] = black
		}
	}
	return nil
}
