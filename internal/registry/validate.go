package registry

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/project"
)

var (
	ctxType     = reflect.TypeOf((*context.Context)(nil)).Elem()
	runCtxType  = reflect.TypeOf((*RunContext)(nil))
	outcomeType = reflect.TypeOf((*Outcome)(nil))
	errType     = reflect.TypeOf((*error)(nil)).Elem()
)

// validateAction performs a strict shape check on a handler at registration
// time, so a handler whose signature drifted from its input struct fails at
// startup instead of at dispatch.
func validateAction(name string, action *RegisteredAction) error {
	if action == nil || action.Fn == nil {
		return fmt.Errorf("action '%s': no handler function", name)
	}
	if action.NewInput == nil {
		return fmt.Errorf("action '%s': no input constructor", name)
	}

	inputType := reflect.TypeOf(action.NewInput())
	if inputType == nil || inputType.Kind() != reflect.Pointer || inputType.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("action '%s': NewInput must return a pointer to a struct, got %v", name, inputType)
	}

	fnType := reflect.TypeOf(action.Fn)
	if fnType.Kind() != reflect.Func {
		return fmt.Errorf("action '%s': handler is %v, not a function", name, fnType)
	}
	if fnType.NumIn() != 3 || fnType.NumOut() != 2 {
		return fmt.Errorf("action '%s': handler must be func(context.Context, *registry.RunContext, *Input) (*registry.Outcome, error)", name)
	}
	if fnType.In(0) != ctxType || fnType.In(1) != runCtxType || fnType.In(2) != inputType {
		return fmt.Errorf("action '%s': handler arguments must be (context.Context, *registry.RunContext, %v)", name, inputType)
	}
	if fnType.Out(0) != outcomeType || fnType.Out(1) != errType {
		return fmt.Errorf("action '%s': handler results must be (*registry.Outcome, error)", name)
	}
	return nil
}

// ValidateSteps performs a strict parity check between the project's step
// declarations and the registered action handlers.
func (r *Registry) ValidateSteps(ctx context.Context, steps []*project.Step) error {
	logger := ctxlog.FromContext(ctx)

	var errs []string
	for _, step := range steps {
		if _, ok := r.actions[step.ActionType]; !ok {
			errs = append(errs, fmt.Sprintf("step '%s': unknown action type '%s' (registered: %s)",
				step.Name, step.ActionType, strings.Join(r.ActionTypes(), ", ")))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	logger.Debug("Registry validated against project steps.", "steps", len(steps))
	return nil
}
