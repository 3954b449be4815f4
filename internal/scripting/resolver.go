package scripting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonforge/internal/binding"
)

// stateGlobal is the Lua table conditions read and actions write. It is the
// seam to the host's property store.
const stateGlobal = "state"

var _ binding.Resolver = (*Resolver)(nil)

// Resolver compiles conditions, actions, and placeholders into closures over
// one sandboxed LState.
//
// Resolver is safe for concurrent use; every Lua call is serialized on an
// internal mutex because an LState is single-threaded.
type Resolver struct {
	mu        sync.Mutex
	L         *lua.LState
	instLimit int
	logger    *zap.Logger
}

// NewResolver creates a Resolver with an empty state table.
//
// Precondition: logger must be non-nil; instLimit >= 0 (0 = DefaultInstructionLimit).
// Postcondition: Returns a Resolver owning a fresh sandboxed LState.
func NewResolver(instLimit int, logger *zap.Logger) *Resolver {
	r := &Resolver{
		L:         NewSandboxedState(instLimit),
		instLimit: instLimit,
		logger:    logger,
	}
	r.L.SetGlobal(stateGlobal, r.L.NewTable())
	r.RegisterModules(r.L)
	return r
}

// Close releases the LState.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.L.Close()
}

// LoadDir executes every *.lua file in dir in lexicographic order, making the
// helpers they define available to conditions and actions.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns an error on the first file that fails to load.
func (r *Resolver) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}
	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, path := range luaFiles {
		release := limitCall(context.Background(), r.L, r.instLimit)
		err := r.L.DoFile(path)
		release()
		if err != nil {
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}
	return nil
}

// CompileCondition compiles expr as a Lua expression. The predicate is
// false when evaluation fails; runtime errors are logged at Warn level.
//
// Postcondition: Returns an error when expr is empty or does not compile.
func (r *Resolver) CompileCondition(expr string) (binding.Predicate, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, errors.New("scripting: empty condition")
	}
	fn, err := r.compile("return ("+expr+")", "condition")
	if err != nil {
		return nil, err
	}
	return func() bool {
		ret, err := r.call(context.Background(), fn)
		if err != nil {
			r.logger.Warn("scripting: condition failed",
				zap.String("expr", expr),
				zap.Error(err),
			)
			return false
		}
		return lua.LVAsBool(ret)
	}, nil
}

// CompileParams compiles the condition, action, and delayed bindings of raw
// and every string value containing a ${...} placeholder. The scene binding
// is copied through as-is.
//
// Postcondition: Returns Params whose Raw is raw, or the first compile error.
func (r *Resolver) CompileParams(raw map[string]any) (binding.Params, error) {
	p := binding.Params{Raw: raw}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := raw[k]
		var err error
		switch k {
		case binding.KeyCondition:
			expr, ok := v.(string)
			if !ok {
				return binding.Params{}, fmt.Errorf("scripting: %s must be a string, got %T", k, v)
			}
			p.Condition, err = r.CompileCondition(expr)
		case binding.KeyScene:
			scene, ok := v.(string)
			if !ok {
				return binding.Params{}, fmt.Errorf("scripting: %s must be a string, got %T", k, v)
			}
			p.Scene = scene
		case binding.KeyAction:
			p.Actions, err = r.compileActions(k, v)
		case binding.KeyDelayed:
			p.Delayed, err = r.compileActions(k, v)
		default:
			s, ok := v.(string)
			if !ok || !strings.Contains(s, "${") {
				continue
			}
			var ph binding.Placeholder
			if ph, err = r.compilePlaceholder(s); err == nil {
				if p.Placeholders == nil {
					p.Placeholders = make(map[string]binding.Placeholder)
				}
				p.Placeholders[k] = ph
			}
		}
		if err != nil {
			return binding.Params{}, fmt.Errorf("compiling %q: %w", k, err)
		}
	}
	return p, nil
}

// ResolveActions runs the immediate actions of p in order, stopping at the
// first failure.
func (r *Resolver) ResolveActions(ctx context.Context, p binding.Params) error {
	return runActions(ctx, p.Actions)
}

// ResolveDelayed runs the delayed actions of p in order, stopping at the
// first failure.
func (r *Resolver) ResolveDelayed(ctx context.Context, p binding.Params) error {
	return runActions(ctx, p.Delayed)
}

func runActions(ctx context.Context, actions []binding.Action) error {
	for i, a := range actions {
		if err := a(ctx); err != nil {
			return fmt.Errorf("scripting: action %d: %w", i, err)
		}
	}
	return nil
}

// SetState stores a Go scalar (bool, number, string) in the state table.
func (r *Resolver) SetState(key string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateTable().RawSetString(key, toLua(v))
}

// State returns a state table value converted to Go, or nil.
func (r *Resolver) State(key string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fromLua(r.stateTable().RawGetString(key))
}

func (r *Resolver) stateTable() *lua.LTable {
	tbl, ok := r.L.GetGlobal(stateGlobal).(*lua.LTable)
	if !ok {
		tbl = r.L.NewTable()
		r.L.SetGlobal(stateGlobal, tbl)
	}
	return tbl
}

func (r *Resolver) compileActions(key string, v any) ([]binding.Action, error) {
	var srcs []string
	switch t := v.(type) {
	case string:
		srcs = []string{t}
	case []any:
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("scripting: %s entries must be strings, got %T", key, e)
			}
			srcs = append(srcs, s)
		}
	default:
		return nil, fmt.Errorf("scripting: %s must be a string or list, got %T", key, v)
	}

	actions := make([]binding.Action, 0, len(srcs))
	for _, src := range srcs {
		fn, err := r.compile(src, key)
		if err != nil {
			return nil, err
		}
		actions = append(actions, func(ctx context.Context) error {
			_, err := r.call(ctx, fn)
			return err
		})
	}
	return actions, nil
}

func (r *Resolver) compilePlaceholder(tmpl string) (binding.Placeholder, error) {
	type part struct {
		lit  string
		expr string
		fn   *lua.LFunction
	}
	var parts []part
	rest := tmpl
	for {
		open := strings.Index(rest, "${")
		if open < 0 {
			parts = append(parts, part{lit: rest})
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, fmt.Errorf("scripting: unterminated placeholder in %q", tmpl)
		}
		expr := rest[open+2 : open+end]
		fn, err := r.compile("return ("+expr+")", "placeholder")
		if err != nil {
			return nil, err
		}
		parts = append(parts, part{lit: rest[:open]}, part{expr: expr, fn: fn})
		rest = rest[open+end+1:]
	}

	return func() string {
		var b strings.Builder
		for _, p := range parts {
			if p.fn == nil {
				b.WriteString(p.lit)
				continue
			}
			v, err := r.call(context.Background(), p.fn)
			if err != nil {
				r.logger.Warn("scripting: placeholder failed",
					zap.String("expr", p.expr),
					zap.Error(err),
				)
				continue
			}
			b.WriteString(v.String())
		}
		return b.String()
	}, nil
}

func (r *Resolver) compile(src, name string) (*lua.LFunction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, err := r.L.Load(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("scripting: compiling %s %q: %w", name, src, err)
	}
	return fn, nil
}

func (r *Resolver) call(ctx context.Context, fn *lua.LFunction) (lua.LValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	release := limitCall(ctx, r.L, r.instLimit)
	defer release()

	if err := r.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}); err != nil {
		return lua.LNil, err
	}
	ret := r.L.Get(-1)
	r.L.Pop(1)
	return ret, nil
}

func toLua(v any) lua.LValue {
	switch t := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(t)
	case int:
		return lua.LNumber(t)
	case int64:
		return lua.LNumber(t)
	case float64:
		return lua.LNumber(t)
	case string:
		return lua.LString(t)
	default:
		return lua.LString(fmt.Sprint(t))
	}
}

func fromLua(v lua.LValue) any {
	switch t := v.(type) {
	case lua.LBool:
		return bool(t)
	case lua.LNumber:
		return float64(t)
	case lua.LString:
		return string(t)
	default:
		return nil
	}
}
