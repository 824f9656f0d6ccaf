// Package web defines the request, response and handler model shared by the
// router, the middleware chain and the dispatcher.
package web

// Handler produces a response for a request. Plain functions satisfy it via
// HandlerFunc; types carrying setup-time state implement it directly.
type Handler interface {
	Handle(req *Request) *Response
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(req *Request) *Response

// Handle calls f(req).
func (f HandlerFunc) Handle(req *Request) *Response {
	return f(req)
}

// Next is the continuation handed to a middleware: the rest of the pipeline.
type Next func(req *Request) *Response

// Middleware wraps the rest of the pipeline. It may call next at most once,
// or return its own response without calling it to short-circuit.
type Middleware func(req *Request, next Next) *Response
