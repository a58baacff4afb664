package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scengridgo/internal/project"
	"github.com/vk/scengridgo/internal/scenario"
)

func mkStep(name string, deps ...string) *project.Step {
	return &project.Step{ActionType: "exec", Name: name, DependsOn: deps, RunDefault: true}
}

func mkScenario(name string) *scenario.Scenario {
	return &scenario.Scenario{Name: name, Subdir: name, Type: scenario.TypeDerived, Active: true}
}

func nodeNames(nodes []*Node) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Step.Name
	}
	return names
}

func TestBuildDAG(t *testing.T) {
	sc := mkScenario("s1")

	t.Run("declaration order without dependencies", func(t *testing.T) {
		dag, err := BuildDAG([]*project.Step{mkStep("c"), mkStep("a"), mkStep("b")}, sc, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a", "b"}, nodeNames(dag.Nodes()))
	})

	t.Run("dependencies override declaration order", func(t *testing.T) {
		dag, err := BuildDAG([]*project.Step{mkStep("b", "a"), mkStep("a")}, sc, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, nodeNames(dag.Nodes()))
	})

	t.Run("diamond keeps declaration tie-break", func(t *testing.T) {
		dag, err := BuildDAG([]*project.Step{
			mkStep("root"),
			mkStep("right", "root"),
			mkStep("left", "root"),
			mkStep("join", "left", "right"),
		}, sc, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"root", "right", "left", "join"}, nodeNames(dag.Nodes()))
	})

	t.Run("filtering excludes inapplicable steps", func(t *testing.T) {
		groups := map[string][]string{"corn": {"other"}}
		steps := []*project.Step{
			mkStep("always"),
			{ActionType: "exec", Name: "corn-only", Groups: []string{"corn"}, RunDefault: true},
		}
		dag, err := BuildDAG(steps, sc, groups)
		require.NoError(t, err)
		assert.Equal(t, []string{"always"}, nodeNames(dag.Nodes()))

		_, ok := dag.Node("corn-only")
		assert.False(t, ok)
	})

	t.Run("dependency on filtered-out step is a hard error", func(t *testing.T) {
		groups := map[string][]string{"corn": {"other"}}
		steps := []*project.Step{
			{ActionType: "exec", Name: "setup", Groups: []string{"corn"}, RunDefault: true},
			mkStep("model", "setup"),
		}
		_, err := BuildDAG(steps, sc, groups)
		var unknownErr *UnknownStepReferenceError
		require.ErrorAs(t, err, &unknownErr)
		assert.Equal(t, "s1", unknownErr.Scenario)
		assert.Equal(t, "model", unknownErr.Step)
		assert.Equal(t, "setup", unknownErr.Ref)
		assert.ErrorIs(t, err, ErrGraph)
	})

	t.Run("dependency on undeclared step is a hard error", func(t *testing.T) {
		_, err := BuildDAG([]*project.Step{mkStep("model", "nope")}, sc, nil)
		assert.ErrorIs(t, err, ErrGraph)
	})

	t.Run("self dependency is a cycle", func(t *testing.T) {
		_, err := BuildDAG([]*project.Step{mkStep("loop", "loop")}, sc, nil)
		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, []string{"loop", "loop"}, cycleErr.Path)
		assert.ErrorIs(t, err, ErrGraph)
	})

	t.Run("two step cycle", func(t *testing.T) {
		_, err := BuildDAG([]*project.Step{mkStep("a", "b"), mkStep("b", "a")}, sc, nil)
		var cycleErr *CycleError
		require.ErrorAs(t, err, &cycleErr)
		assert.Equal(t, "s1", cycleErr.Scenario)
		assert.Contains(t, cycleErr.Path, "a")
		assert.Contains(t, cycleErr.Path, "b")
	})

	t.Run("longer cycle below valid steps", func(t *testing.T) {
		_, err := BuildDAG([]*project.Step{
			mkStep("ok"),
			mkStep("x", "z"),
			mkStep("y", "x"),
			mkStep("z", "y"),
		}, sc, nil)
		assert.ErrorIs(t, err, ErrGraph)
	})

	t.Run("duplicate depends_on entries collapse to one edge", func(t *testing.T) {
		dag, err := BuildDAG([]*project.Step{mkStep("a"), mkStep("b", "a", "a")}, sc, nil)
		require.NoError(t, err)

		b, ok := dag.Node("b")
		require.True(t, ok)
		assert.Len(t, b.Deps, 1)

		a, ok := dag.Node("a")
		require.True(t, ok)
		assert.Len(t, a.Dependents, 1)
	})

	t.Run("empty step list yields empty dag", func(t *testing.T) {
		dag, err := BuildDAG(nil, sc, nil)
		require.NoError(t, err)
		assert.Empty(t, dag.Nodes())
	})
}
