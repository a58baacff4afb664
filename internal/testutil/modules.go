package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/scengridgo/internal/registry"
)

// Execution records one handler invocation seen by a RecorderModule.
type Execution struct {
	Scenario string
	Step     string
	Note     string
}

// RecorderModule registers a "record" action whose handler appends every
// invocation to an in-memory list, so tests can assert what the engine
// dispatched and in which order.
type RecorderModule struct {
	mu         sync.Mutex
	executions []Execution
}

// RecorderInput is the argument block of the "record" action.
type RecorderInput struct {
	Note string `hcl:"note,optional"`
}

// Executions returns the recorded invocations in dispatch order.
func (m *RecorderModule) Executions() []Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Execution, len(m.executions))
	copy(out, m.executions)
	return out
}

// Register registers the "record" action.
func (m *RecorderModule) Register(r *registry.Registry) {
	r.RegisterAction("record", &registry.RegisteredAction{
		NewInput: func() any { return new(RecorderInput) },
		Fn: func(ctx context.Context, rc *registry.RunContext, input *RecorderInput) (*registry.Outcome, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.executions = append(m.executions, Execution{
				Scenario: rc.Scenario.Name,
				Step:     rc.Step,
				Note:     input.Note,
			})
			return nil, nil
		},
	})
}

// FailingModule registers a "fail" action whose handler always errors, for
// tests exercising failure propagation and dependent skipping.
type FailingModule struct{}

// Register registers the "fail" action.
func (m *FailingModule) Register(r *registry.Registry) {
	r.RegisterAction("fail", &registry.RegisteredAction{
		NewInput: func() any { return new(struct{}) },
		Fn: func(ctx context.Context, rc *registry.RunContext, _ *struct{}) (*registry.Outcome, error) {
			return nil, fmt.Errorf("action failed for scenario %q", rc.Scenario.Name)
		},
	})
}

// NoOpModule registers a "noop" action that does nothing, for tests that
// need valid steps which should never actually matter.
type NoOpModule struct{}

// Register registers the "noop" action.
func (m *NoOpModule) Register(r *registry.Registry) {
	r.RegisterAction("noop", &registry.RegisteredAction{
		NewInput: func() any { return new(struct{}) },
		Fn: func(ctx context.Context, rc *registry.RunContext, _ *struct{}) (*registry.Outcome, error) {
			return nil, nil
		},
	})
}
