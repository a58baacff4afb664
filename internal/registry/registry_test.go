package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/scengridgo/internal/project"
)

type nopInput struct{}

func nopHandler(ctx context.Context, run *RunContext, input *nopInput) (*Outcome, error) {
	return nil, nil
}

func validAction() *RegisteredAction {
	return &RegisteredAction{
		NewInput: func() any { return new(nopInput) },
		Fn:       nopHandler,
	}
}

type testModule struct{ name string }

func (m *testModule) Register(r *Registry) {
	r.RegisterAction(m.name, validAction())
}

func TestRegisterAction(t *testing.T) {
	t.Run("registers and resolves a handler", func(t *testing.T) {
		r := New()
		r.RegisterAction("exec", validAction())

		got, ok := r.Action("exec")
		require.True(t, ok)
		assert.NotNil(t, got.Fn)

		_, ok = r.Action("missing")
		assert.False(t, ok)
	})

	t.Run("panics on duplicate name", func(t *testing.T) {
		r := New()
		r.RegisterAction("exec", validAction())
		assert.PanicsWithValue(t, "action with name 'exec' already registered", func() {
			r.RegisterAction("exec", validAction())
		})
	})

	t.Run("panics on handler with wrong arity", func(t *testing.T) {
		r := New()
		assert.Panics(t, func() {
			r.RegisterAction("bad", &RegisteredAction{
				NewInput: func() any { return new(nopInput) },
				Fn:       func(ctx context.Context, input *nopInput) (*Outcome, error) { return nil, nil },
			})
		})
	})

	t.Run("panics on handler with mismatched input type", func(t *testing.T) {
		type otherInput struct{}
		r := New()
		assert.Panics(t, func() {
			r.RegisterAction("bad", &RegisteredAction{
				NewInput: func() any { return new(otherInput) },
				Fn:       nopHandler,
			})
		})
	})

	t.Run("panics on missing input constructor", func(t *testing.T) {
		r := New()
		assert.Panics(t, func() {
			r.RegisterAction("bad", &RegisteredAction{Fn: nopHandler})
		})
	})

	t.Run("panics on handler with wrong results", func(t *testing.T) {
		r := New()
		assert.Panics(t, func() {
			r.RegisterAction("bad", &RegisteredAction{
				NewInput: func() any { return new(nopInput) },
				Fn:       func(ctx context.Context, run *RunContext, input *nopInput) error { return nil },
			})
		})
	})
}

func TestInstallAndActionTypes(t *testing.T) {
	r := New()
	r.Install(&testModule{name: "modelrun"}, &testModule{name: "execcmd"})
	assert.Equal(t, []string{"execcmd", "modelrun"}, r.ActionTypes())
}

func TestValidateSteps(t *testing.T) {
	ctx := context.Background()
	r := New()
	r.RegisterAction("execcmd", validAction())

	t.Run("accepts steps with registered actions", func(t *testing.T) {
		steps := []*project.Step{{ActionType: "execcmd", Name: "prep"}}
		assert.NoError(t, r.ValidateSteps(ctx, steps))
	})

	t.Run("rejects a step naming an unknown action", func(t *testing.T) {
		steps := []*project.Step{
			{ActionType: "execcmd", Name: "prep"},
			{ActionType: "teleport", Name: "impossible"},
		}
		err := r.ValidateSteps(ctx, steps)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "step 'impossible'")
		assert.Contains(t, err.Error(), "unknown action type 'teleport'")
	})
}
