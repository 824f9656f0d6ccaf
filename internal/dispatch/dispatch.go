// Package dispatch turns inbound requests into responses: exact route match
// through the middleware pipeline, then static assets, then a fixed 404.
//
// Handler failures stop at this boundary. A panic or a nil response becomes a
// 500 and the server keeps accepting requests.
package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/velto/internal/devmode"
	velerrors "github.com/conneroisu/velto/internal/errors"
	"github.com/conneroisu/velto/internal/logging"
	"github.com/conneroisu/velto/internal/metrics"
	"github.com/conneroisu/velto/internal/middleware"
	"github.com/conneroisu/velto/internal/router"
	"github.com/conneroisu/velto/internal/static"
	"github.com/conneroisu/velto/internal/web"
)

// Dispatcher implements http.Handler.
type Dispatcher struct {
	table    *router.Table
	chain    *middleware.Chain
	resolver *static.Resolver

	policy  web.UnknownMethodPolicy
	maxBody int64
	state   *devmode.State
	logger  logging.Logger
	metrics *metrics.Collector

	prepareOnce sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithUnknownMethodPolicy sets how wire methods outside the routable set are
// handled. The default is web.PolicyReject.
func WithUnknownMethodPolicy(policy web.UnknownMethodPolicy) Option {
	return func(d *Dispatcher) {
		d.policy = policy
	}
}

// WithMaxBodyBytes caps buffered request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(d *Dispatcher) {
		d.maxBody = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger.WithComponent("dispatch")
	}
}

// WithMetrics records request outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) {
		d.metrics = c
	}
}

// WithDevMode enables verbose per-request diagnostics while state is enabled.
func WithDevMode(state *devmode.State) Option {
	return func(d *Dispatcher) {
		d.state = state
	}
}

// New builds a dispatcher. chain and resolver may be nil.
func New(table *router.Table, chain *middleware.Chain, resolver *static.Resolver, opts ...Option) *Dispatcher {
	if table == nil {
		panic("dispatch: route table cannot be nil")
	}
	if chain == nil {
		chain = middleware.NewChain()
	}
	if resolver == nil {
		resolver = static.New(nil)
	}

	d := &Dispatcher{
		table:    table,
		chain:    chain,
		resolver: resolver,
		policy:   web.PolicyReject,
		maxBody:  web.DefaultMaxBodyBytes,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Prepare freezes the middleware chain and precomputes every route's
// pipeline. It runs once, on the first call or the first request.
func (d *Dispatcher) Prepare() {
	d.prepareOnce.Do(func() {
		d.chain.Freeze()
		d.table.SetWrapper(d.chain.Wrap)
	})
}

// Policy returns the unknown-method policy in effect.
func (d *Dispatcher) Policy() web.UnknownMethodPolicy {
	return d.policy
}

// ServeHTTP buffers the request, dispatches it and writes the response.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	req, err := web.NewRequest(r, d.maxBody)
	if err != nil {
		res := d.requestError(r, err)
		d.metrics.ObserveRequest(r.Method, outcomeFor(res), time.Since(start))
		d.write(w, r, res)
		return
	}

	res, outcome := d.dispatch(req)
	d.metrics.ObserveRequest(r.Method, outcome, time.Since(start))
	d.write(w, r, res)
}

// Dispatch resolves req to a response.
func (d *Dispatcher) Dispatch(req *web.Request) *web.Response {
	res, _ := d.dispatch(req)
	return res
}

func (d *Dispatcher) dispatch(req *web.Request) (*web.Response, string) {
	d.Prepare()

	if !req.Method.Valid() {
		switch d.policy {
		case web.PolicyFallbackGET:
			req.Method = web.MethodGet
		default:
			return d.methodNotAllowed(req), metrics.OutcomeMethodRejected
		}
	}

	// Lookup releases the table lock before returning, so the handler may
	// register routes of its own.
	if pipeline, ok := d.table.Lookup(req.Path, req.Method); ok {
		return d.invoke(pipeline, req)
	}

	if asset, ok := d.resolver.Resolve(req.RawPath); ok {
		if d.state.Enabled() {
			d.logger.Debug(req.Context(), "static file served", "path", req.Path, "file", asset.Path)
		}
		return web.Data(asset.Content).WithContentType(asset.MIMEType), metrics.OutcomeStatic
	}

	return web.NotFound(), metrics.OutcomeNotFound
}

// invoke runs pipeline with panic isolation.
func (d *Dispatcher) invoke(pipeline web.Handler, req *web.Request) (res *web.Response, outcome string) {
	defer func() {
		if r := recover(); r != nil {
			err := velerrors.NewInternalError(velerrors.ErrCodeHandlerPanic, "handler panicked", fmt.Errorf("%v", r)).
				WithPath(req.Path)
			d.logger.Error(req.Context(), err, "recovered from handler panic",
				"method", req.WireMethod(),
				"path", req.Path,
				"stack", string(debug.Stack()))
			res, outcome = web.InternalError(), metrics.OutcomePanic
		}
	}()

	res = pipeline.Handle(req)
	if res == nil {
		err := velerrors.NewInternalError(velerrors.ErrCodeHandlerPanic, "handler returned nil response", nil).
			WithPath(req.Path)
		d.logger.Error(req.Context(), err, "handler returned no response",
			"method", req.WireMethod(),
			"path", req.Path)
		return web.InternalError(), metrics.OutcomePanic
	}
	return res, metrics.OutcomeRoute
}

// methodNotAllowed answers a wire method outside the routable set.
func (d *Dispatcher) methodNotAllowed(req *web.Request) *web.Response {
	allowed := d.table.MethodsFor(req.Path)
	if len(allowed) == 0 {
		allowed = web.Methods
	}
	names := make([]string, len(allowed))
	for i, m := range allowed {
		names[i] = m.String()
	}

	if d.state.Enabled() {
		d.logger.Debug(req.Context(), "rejected unknown method", "method", req.WireMethod(), "path", req.Path)
	}

	return web.Text(web.MethodNotAllowedBody).
		WithStatus(http.StatusMethodNotAllowed).
		WithHeader("Allow", strings.Join(names, ", "))
}

// requestError maps a failure to buffer the request body.
func (d *Dispatcher) requestError(r *http.Request, err error) *web.Response {
	ctx := r.Context()
	if errors.Is(err, web.ErrBodyTooLarge) {
		d.logger.Warn(ctx, velerrors.NewValidationError(velerrors.ErrCodeBodyTooLarge, err.Error()),
			"request body rejected", "path", r.URL.Path, "limit", d.maxBody)
		return web.Text("413 Payload Too Large").WithStatus(http.StatusRequestEntityTooLarge)
	}
	d.logger.Warn(ctx, err, "reading request failed", "path", r.URL.Path)
	return web.Text("400 Bad Request").WithStatus(http.StatusBadRequest)
}

func (d *Dispatcher) write(w http.ResponseWriter, r *http.Request, res *web.Response) {
	if err := res.WriteTo(w, r.Method != http.MethodHead); err != nil {
		d.logger.Debug(r.Context(), "writing response failed", "error", err.Error())
	}
}

func outcomeFor(res *web.Response) string {
	if res.Status == http.StatusRequestEntityTooLarge {
		return metrics.OutcomeBodyTooLarge
	}
	return metrics.OutcomeBadRequest
}
