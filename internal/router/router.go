// Package router holds the route table: an exact-match mapping from
// (path, method) to a handler.
package router

import (
	"sort"
	"sync"

	"github.com/conneroisu/velto/internal/web"
)

// Route describes one registered (path, method) pair.
type Route struct {
	Path   string
	Method web.Method
}

// Wrapper composes cross-cutting behaviour around a handler.
type Wrapper func(web.Handler) web.Handler

// entry keeps the registered handler next to its precomputed pipeline.
type entry struct {
	handler  web.Handler
	pipeline web.Handler
}

// Table maps paths to per-method handlers.
//
// Invariants:
//   - at most one handler per (path, method); re-registration overwrites
//   - every read and write happens under mu
//   - handlers are never invoked while mu is held
//   - once a Wrapper is installed every entry's pipeline is wrap(handler)
type Table struct {
	mu     sync.Mutex
	routes map[string]map[web.Method]entry
	wrap   Wrapper
}

// NewTable returns an empty route table.
func NewTable() *Table {
	return &Table{
		routes: make(map[string]map[web.Method]entry),
	}
}

// SetWrapper installs wrap and precomputes the pipeline of every registered
// route. Routes registered later are wrapped as they are stored.
func (t *Table) SetWrapper(wrap Wrapper) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.wrap = wrap
	for _, byMethod := range t.routes {
		for m, e := range byMethod {
			byMethod[m] = t.newEntry(e.handler)
		}
	}
}

// newEntry builds an entry for handler. Caller holds mu.
func (t *Table) newEntry(handler web.Handler) entry {
	pipeline := handler
	if t.wrap != nil {
		pipeline = t.wrap(handler)
	}
	return entry{handler: handler, pipeline: pipeline}
}

// Register stores handler for (path, method), replacing any earlier handler.
// Registering MethodUnknown or a nil handler panics: both are programming
// errors at setup time.
func (t *Table) Register(path string, method web.Method, handler web.Handler) {
	if handler == nil {
		panic("router: handler cannot be nil")
	}
	if !method.Valid() {
		panic("router: cannot register route for method " + method.String())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.methodsFor(path)[method] = t.newEntry(handler)
}

// RegisterAll stores the same handler for every method in methods.
func (t *Table) RegisterAll(methods []web.Method, path string, handler web.Handler) {
	if handler == nil {
		panic("router: handler cannot be nil")
	}
	for _, m := range methods {
		if !m.Valid() {
			panic("router: cannot register route for method " + m.String())
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	byMethod := t.methodsFor(path)
	e := t.newEntry(handler)
	for _, m := range methods {
		byMethod[m] = e
	}
}

// methodsFor returns the per-method map for path, creating it. Caller holds mu.
func (t *Table) methodsFor(path string) map[web.Method]entry {
	byMethod, ok := t.routes[path]
	if !ok {
		byMethod = make(map[web.Method]entry)
		t.routes[path] = byMethod
	}
	return byMethod
}

// Lookup returns the pipeline registered for exactly (path, method): the
// handler itself until a Wrapper is installed. The returned handler is
// invoked by the caller after the table lock has been released.
func (t *Table) Lookup(path string, method web.Method) (web.Handler, bool) {
	t.mu.Lock()
	e, ok := t.routes[path][method]
	t.mu.Unlock()

	if !ok {
		return nil, false
	}
	return e.pipeline, true
}

// MethodsFor returns the methods registered for path, in declaration order.
func (t *Table) MethodsFor(path string) []web.Method {
	t.mu.Lock()
	defer t.mu.Unlock()

	byMethod := t.routes[path]
	methods := make([]web.Method, 0, len(byMethod))
	for _, m := range web.Methods {
		if _, ok := byMethod[m]; ok {
			methods = append(methods, m)
		}
	}
	return methods
}

// Routes returns a snapshot of all registered routes sorted by path then
// method.
func (t *Table) Routes() []Route {
	t.mu.Lock()
	routes := make([]Route, 0, len(t.routes))
	for path, byMethod := range t.routes {
		for m := range byMethod {
			routes = append(routes, Route{Path: path, Method: m})
		}
	}
	t.mu.Unlock()

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

// Len returns the number of registered (path, method) pairs.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, byMethod := range t.routes {
		n += len(byMethod)
	}
	return n
}
