// Package middleware composes cross-cutting wrappers around route handlers.
package middleware

import (
	"fmt"
	"sync"

	"github.com/conneroisu/velto/internal/web"
)

// Chain is an ordered, append-only list of middleware.
//
// Execution order follows registration order (onion model). With
// middlewares [A, B] and handler H:
//   - Execution: A(B(H))
//   - Request flow: A -> B -> H
//   - Response flow: H -> B -> A
//
// Invariants:
//   - middlewares only grows, and only before Freeze
//   - after Freeze the list is immutable, so Wrap results can be cached
type Chain struct {
	mu          sync.RWMutex
	middlewares []web.Middleware
	frozen      bool
}

// NewChain creates a chain holding mws in order.
func NewChain(mws ...web.Middleware) *Chain {
	c := &Chain{middlewares: make([]web.Middleware, 0, len(mws)+4)}
	for _, mw := range mws {
		c.Add(mw)
	}
	return c
}

// Add appends mw as the new innermost middleware. It panics when mw is nil
// or the chain is frozen.
func (c *Chain) Add(mw web.Middleware) {
	if mw == nil {
		panic("middleware: cannot add nil middleware")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		panic("middleware: chain is frozen; register middleware before serving")
	}
	c.middlewares = append(c.middlewares, mw)
}

// Freeze makes the chain immutable. Calling it more than once is harmless.
func (c *Chain) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (c *Chain) Frozen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frozen
}

// Len returns the number of middlewares in the chain.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// Wrap composes the chain around handler. The first-registered middleware
// ends up outermost. The result reflects the chain at the time of the call.
func (c *Chain) Wrap(handler web.Handler) web.Handler {
	if handler == nil {
		panic("middleware: handler cannot be nil")
	}

	c.mu.RLock()
	mws := make([]web.Middleware, len(c.middlewares))
	copy(mws, c.middlewares)
	c.mu.RUnlock()

	next := web.Next(handler.Handle)
	for i := len(mws) - 1; i >= 0; i-- {
		next = link(mws[i], next, i)
	}
	return web.HandlerFunc(next)
}

// link binds one middleware to the continuation beneath it.
func link(mw web.Middleware, next web.Next, position int) web.Next {
	return func(req *web.Request) *web.Response {
		res := mw(req, next)
		if res == nil {
			panic(fmt.Sprintf("middleware at position %d returned nil response", position))
		}
		return res
	}
}
