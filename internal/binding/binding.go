// Package binding defines the compiled form of authored conditions and actions
// and the Resolver contract the dungeon compiler uses to produce them.
// It has no dependency on any scripting implementation.
package binding

import "context"

// Parameter keys with compiled meaning.
const (
	KeyCondition = "condition"
	KeyScene     = "scene"
	KeyAction    = "action"
	KeyDelayed   = "delayed"
)

// Predicate is a compiled condition.
type Predicate func() bool

// Action is a compiled effect.
type Action func(ctx context.Context) error

// Placeholder is a compiled templated value, evaluated on demand.
type Placeholder func() string

// Params is a parameter block after compilation.
type Params struct {
	// Raw is the parameter block as authored (with derived defaults applied).
	Raw map[string]any
	// Condition gates availability; nil means always available.
	Condition Predicate
	// Scene is the content-line ID to show when the binding fires.
	Scene string
	// Actions run immediately when the binding fires.
	Actions []Action
	// Delayed run after the bound scene has been shown.
	Delayed []Action
	// Placeholders holds templated string parameters by key.
	Placeholders map[string]Placeholder
}

// Available reports whether the condition holds (true when there is none).
func (p Params) Available() bool {
	return p.Condition == nil || p.Condition()
}

// HasActions reports whether the block binds a scene or any action.
func (p Params) HasActions() bool {
	return p.Scene != "" || len(p.Actions) > 0 || len(p.Delayed) > 0
}

// Resolver compiles conditions and parameter blocks and executes actions.
type Resolver interface {
	// CompileCondition compiles a condition expression into a predicate.
	CompileCondition(expr string) (Predicate, error)
	// CompileParams compiles the conditions, actions, and placeholders of raw.
	CompileParams(raw map[string]any) (Params, error)
	// ResolveActions runs the immediate actions of p in order.
	ResolveActions(ctx context.Context, p Params) error
}
