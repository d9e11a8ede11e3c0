// Package jsexpr provides a shared JavaScript environment (goja) that plan
// steps use for predicates, counters and side effects.
//
// A single goja.Runtime is not safe for concurrent use, so every call goes
// through the Env mutex. Top-level `var` declarations and values assigned
// with Set persist between calls.
package jsexpr

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dop251/goja"
)

// Env is a persistent JavaScript global scope.
type Env struct {
	mu       sync.Mutex
	vm       *goja.Runtime
	programs map[string]*goja.Program
}

// New creates an environment and runs each library script in order.
func New(lib ...string) (*Env, error) {
	e := &Env{
		vm:       goja.New(),
		programs: make(map[string]*goja.Program),
	}
	for i, src := range lib {
		if _, err := e.Eval(src); err != nil {
			return nil, fmt.Errorf("lib[%d]: %w", i, err)
		}
	}
	return e, nil
}

// Eval runs src and returns its completion value exported to Go.
// Integral numbers export as int64, other numbers as float64.
func (e *Env) Eval(src string) (any, error) {
	val, err := e.run(src)
	if err != nil {
		return nil, err
	}
	return val.Export(), nil
}

// Bool runs src and converts the result with JavaScript truthiness.
func (e *Env) Bool(src string) (bool, error) {
	val, err := e.run(src)
	if err != nil {
		return false, err
	}
	return val.ToBoolean(), nil
}

// Number runs src, which must produce a number.
func (e *Env) Number(src string) (float64, error) {
	val, err := e.run(src)
	if err != nil {
		return 0, err
	}
	switch v := val.Export().(type) {
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("expression %q did not return a number: %T", src, v)
	}
}

// Set binds name to v in the global scope.
func (e *Env) Set(name string, v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.vm.Set(name, v); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// Vars returns the enumerable, non-function globals.
func (e *Env) Vars() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	global := e.vm.GlobalObject()
	out := make(map[string]any)
	for _, k := range global.Keys() {
		v := global.Get(k)
		if _, isFunc := goja.AssertFunction(v); isFunc {
			continue
		}
		out[k] = v.Export()
	}
	return out
}

// Names returns the keys of Vars in sorted order.
func (e *Env) Names() []string {
	vars := e.Vars()
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (e *Env) run(src string) (goja.Value, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prog, ok := e.programs[src]
	if !ok {
		var err error
		prog, err = goja.Compile("", src, false)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", src, err)
		}
		e.programs[src] = prog
	}
	val, err := e.vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("eval %q: %w", src, err)
	}
	return val, nil
}

// Check reports whether src compiles, without running it.
func Check(src string) error {
	if _, err := goja.Compile("", src, false); err != nil {
		return fmt.Errorf("compile %q: %w", src, err)
	}
	return nil
}
