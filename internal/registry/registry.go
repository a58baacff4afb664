package registry

import (
	"fmt"
	"log/slog"
	"sort"
)

// Module is the interface that all core action modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredAction holds the compiled Go parts of one action type.
type RegisteredAction struct {
	// NewInput returns a pointer to the action's argument struct. Step
	// arguments are decoded into it before the handler is called. Actions
	// without arguments return a pointer to an empty struct.
	NewInput func() any

	// Fn is the handler, with signature
	// func(context.Context, *RunContext, *Input) (*Outcome, error)
	// where *Input is the type NewInput returns.
	Fn any
}

// Registry holds the registered action handlers for a single application
// instance.
type Registry struct {
	actions map[string]*RegisteredAction
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{actions: make(map[string]*RegisteredAction)}
}

// Install registers every module into the registry.
func (r *Registry) Install(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}

// RegisterAction registers a Go handler for an action type. Registration
// happens once at startup from compiled-in modules, so a duplicate name or a
// malformed handler is a programming error and panics.
func (r *Registry) RegisterAction(name string, action *RegisteredAction) {
	if _, exists := r.actions[name]; exists {
		panic(fmt.Sprintf("action with name '%s' already registered", name))
	}
	if err := validateAction(name, action); err != nil {
		panic(err.Error())
	}
	slog.Debug("Registering action handler.", "name", name)
	r.actions[name] = action
}

// Action returns the registered handler for an action type.
func (r *Registry) Action(name string) (*RegisteredAction, bool) {
	a, ok := r.actions[name]
	return a, ok
}

// ActionTypes returns the registered action type names, sorted.
func (r *Registry) ActionTypes() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
