// Package globals is the whitelist of names member code may reach outside
// the model: host-provided values and the function library.
//
// Resolution is by exact name only. Anything not registered is simply not
// visible, so code cannot touch host state it was not given.
package globals

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// Resolver serves global values and functions.
type Resolver struct {
	mu        sync.RWMutex
	sealed    bool
	values    map[string]cty.Value
	functions map[string]function.Function
}

// New returns an empty resolver.
func New() *Resolver {
	return &Resolver{
		values:    make(map[string]cty.Value),
		functions: make(map[string]function.Function),
	}
}

// Default returns a resolver preloaded with the standard function library
// and the delay function.
func Default() *Resolver {
	r := New()
	for name, fn := range stdFunctions() {
		r.RegisterFunction(name, fn)
	}
	r.RegisterFunction("delay", DelayFunc)
	return r
}

// RegisterValue makes a value visible to member code. It panics once the
// resolver is sealed.
func (r *Resolver) RegisterValue(name string, v cty.Value) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("globals: cannot register value %q after seal", name))
	}
	r.values[name] = v
}

// RegisterFunction makes a function callable from member code. It panics
// once the resolver is sealed.
func (r *Resolver) RegisterFunction(name string, fn function.Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		panic(fmt.Sprintf("globals: cannot register function %q after seal", name))
	}
	r.functions[name] = fn
}

// Seal forbids further registration.
func (r *Resolver) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// ModelGlobal looks up a global value.
func (r *Resolver) ModelGlobal(name string) (cty.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return v, ok
}

// ModelFunction looks up a global function.
func (r *Resolver) ModelFunction(name string) (function.Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[name]
	return fn, ok
}

// FunctionNames lists the registered functions in sorted order.
func (r *Resolver) FunctionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
