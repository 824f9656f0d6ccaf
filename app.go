package velto

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/velto/internal/devmode"
	"github.com/conneroisu/velto/internal/dispatch"
	"github.com/conneroisu/velto/internal/logging"
	"github.com/conneroisu/velto/internal/metrics"
	"github.com/conneroisu/velto/internal/middleware"
	"github.com/conneroisu/velto/internal/reload"
	"github.com/conneroisu/velto/internal/renderer"
	"github.com/conneroisu/velto/internal/router"
	"github.com/conneroisu/velto/internal/static"
	"github.com/conneroisu/velto/internal/watcher"
	"github.com/conneroisu/velto/internal/web"
)

// DefaultShutdownTimeout bounds how long Run waits for in-flight requests.
const DefaultShutdownTimeout = 10 * time.Second

// App is the embeddable server. Routes, middleware and static directories
// are registered before Run; routes may also be added while serving.
type App struct {
	table      *router.Table
	chain      *middleware.Chain
	resolver   *static.Resolver
	dispatcher *dispatch.Dispatcher
	renderer   *renderer.Renderer
	dev        *devmode.State
	logger     logging.Logger
	metrics    *metrics.Collector
	opts       options

	mu          sync.Mutex
	watchDirs   []string
	coordinator *reload.Coordinator
}

type options struct {
	logger          logging.Logger
	registry        prometheus.Registerer
	policy          web.UnknownMethodPolicy
	maxBody         int64
	templatesDir    string
	reloadHost      string
	reloadBase      int
	reloadRange     int
	output          io.Writer
	shutdownTimeout time.Duration
}

// Option configures an App.
type Option func(*options)

// WithLogger sets the logger used by every component.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetricsRegistry records request and reload metrics on registry.
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// WithUnknownMethodPolicy decides how unsupported wire methods are handled.
func WithUnknownMethodPolicy(policy UnknownMethodPolicy) Option {
	return func(o *options) {
		o.policy = policy
	}
}

// WithMaxBodyBytes limits buffered request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(o *options) {
		o.maxBody = n
	}
}

// WithTemplatesDir sets where Render looks for templates. The directory is
// watched in development mode.
func WithTemplatesDir(dir string) Option {
	return func(o *options) {
		o.templatesDir = dir
	}
}

// WithReloadPorts sets the live-reload interface, the first port tried and
// how many consecutive ports are tried.
func WithReloadPorts(host string, base, span int) Option {
	return func(o *options) {
		o.reloadHost = host
		o.reloadBase = base
		o.reloadRange = span
	}
}

// WithOutput sets where the startup banner is written.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.output = w
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}

// New creates an App with no routes, no middleware and no static
// directories. Development mode starts disabled.
func New(opts ...Option) *App {
	o := options{
		policy:          web.PolicyReject,
		maxBody:         web.DefaultMaxBodyBytes,
		templatesDir:    renderer.DefaultDir,
		reloadHost:      reload.DefaultHost,
		reloadBase:      devmode.DefaultReloadPort,
		reloadRange:     devmode.DefaultPortRange,
		output:          os.Stdout,
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewLogger(logging.DefaultConfig())
	}

	var collector *metrics.Collector
	if o.registry != nil {
		collector = metrics.New(metrics.WithRegistry(o.registry))
	}

	dev := devmode.New(o.reloadBase, devmode.WithReloadHost(o.reloadHost))
	table := router.NewTable()
	chain := middleware.NewChain()
	resolver := static.New(nil,
		static.WithLogger(o.logger),
		static.WithDevMode(dev))

	return &App{
		table:    table,
		chain:    chain,
		resolver: resolver,
		dispatcher: dispatch.New(table, chain, resolver,
			dispatch.WithUnknownMethodPolicy(o.policy),
			dispatch.WithMaxBodyBytes(o.maxBody),
			dispatch.WithLogger(o.logger),
			dispatch.WithMetrics(collector),
			dispatch.WithDevMode(dev)),
		renderer: renderer.New(o.templatesDir, dev, renderer.WithLogger(o.logger)),
		dev:      dev,
		logger:   o.logger,
		metrics:  collector,
		opts:     o,
	}
}

// Route registers handler for exactly (method, path). A later registration
// for the same pair replaces the earlier one.
func (a *App) Route(method Method, path string, handler Handler) {
	a.table.Register(path, method, handler)
}

// RouteFunc registers a plain function as a handler.
func (a *App) RouteFunc(method Method, path string, fn func(*Request) *Response) {
	a.Route(method, path, HandlerFunc(fn))
}

// RouteAll registers handler for every method in methods.
func (a *App) RouteAll(methods []Method, path string, handler Handler) {
	a.table.RegisterAll(methods, path, handler)
}

// Use appends mw to the middleware chain. The first middleware registered
// runs outermost. Use panics once the App has started serving.
func (a *App) Use(mw Middleware) {
	a.chain.Add(mw)
}

// RequestLogger returns a middleware logging every routed request with the
// App's logger.
func (a *App) RequestLogger() Middleware {
	return middleware.Logger(a.logger)
}

// SecurityHeaders returns a middleware adding CSP and related headers to
// routed responses. In development mode the policy admits the live-reload
// client.
func (a *App) SecurityHeaders() Middleware {
	return middleware.SecurityHeadersFor(a.dev)
}

// ServeStatic adds dir to the shared directory list. Every directory in the
// list is searched for static files in the order added and, in development
// mode, watched for changes.
func (a *App) ServeStatic(dir string) {
	a.addDir(dir)
}

// Serve is an alias for ServeStatic.
func (a *App) Serve(dir string) {
	a.ServeStatic(dir)
}

// WatchPath adds dir to the shared directory list. It behaves exactly like
// ServeStatic: the directory is searched for static files and watched.
func (a *App) WatchPath(dir string) {
	a.addDir(dir)
}

// addDir appends dir to both the watch set and the static search order,
// keeping them one list. Repeated directories keep their first position.
func (a *App) addDir(dir string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.watchDirs {
		if filepath.Clean(existing) == filepath.Clean(dir) {
			return
		}
	}
	a.watchDirs = append(a.watchDirs, dir)
	a.resolver.Add(dir)
}

// WatchDirs returns the directories live reload watches: the shared
// directory list, plus the templates directory in development mode.
func (a *App) WatchDirs() []string {
	a.mu.Lock()
	dirs := append([]string(nil), a.watchDirs...)
	a.mu.Unlock()

	if a.dev.Enabled() {
		templates := filepath.Clean(a.renderer.Dir())
		for _, dir := range dirs {
			if filepath.Clean(dir) == templates {
				return dirs
			}
		}
		dirs = append(dirs, a.renderer.Dir())
	}
	return dirs
}

// StaticDirs returns the static search path in order.
func (a *App) StaticDirs() []string {
	return a.resolver.Dirs()
}

// EnableDevMode turns on development mode: live reload starts with Run,
// static misses are logged and rendered pages get the reload client.
func (a *App) EnableDevMode() {
	a.dev.Enable()
}

// IsDevMode reports whether development mode is on.
func (a *App) IsDevMode() bool {
	return a.dev.Enabled()
}

// DevMode returns the shared development-mode state.
func (a *App) DevMode() *devmode.State {
	return a.dev
}

// ReloadPort returns the live-reload port: the negotiated one once Run has
// started, the base port before.
func (a *App) ReloadPort() int {
	return a.dev.ReloadPort()
}

// Routes returns every registered route sorted by path then method.
func (a *App) Routes() []RouteInfo {
	return a.table.Routes()
}

// Handler returns the App as an http.Handler. The middleware chain is
// frozen on the first request.
func (a *App) Handler() http.Handler {
	return a.dispatcher
}

// Render renders the named template with data as an HTML response.
func (a *App) Render(name string, data map[string]string) *Response {
	return web.HTML(a.renderer.Render(name, data))
}

// Component adapts a templ component into a handler. Rendering errors
// become a 500.
func (a *App) Component(component templ.Component) Handler {
	return HandlerFunc(func(req *Request) *Response {
		page, err := a.renderer.RenderComponent(req.Context(), component)
		if err != nil {
			a.logger.Error(req.Context(), err, "component render failed", "path", req.Path)
			return web.InternalError()
		}
		return web.Data(page).WithContentType("text/html; charset=utf-8")
	})
}

// Run listens on addr and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return a.RunListener(ctx, ln)
}

// RunListener serves on ln until ctx is cancelled, then shuts down
// gracefully. In development mode the live-reload coordinator runs
// alongside the accept loop; its failures never stop the server.
func (a *App) RunListener(ctx context.Context, ln net.Listener) error {
	a.dispatcher.Prepare()

	g, gctx := errgroup.WithContext(ctx)

	if a.dev.Enabled() {
		coordinator := a.newCoordinator()
		if err := coordinator.Start(gctx); err != nil {
			a.logger.Error(ctx, err, "live reload unavailable")
		}
		g.Go(func() error {
			return coordinator.Run(gctx)
		})
	}

	a.banner(ln.Addr().String())

	server := &http.Server{
		Handler:           a.dispatcher,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return gctx
		},
	}

	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		a.logger.Info(shutdownCtx, "server stopped")
		return nil
	})

	return g.Wait()
}

func (a *App) newCoordinator() *reload.Coordinator {
	c := reload.New(reload.Config{
		Host:      a.opts.reloadHost,
		BasePort:  a.opts.reloadBase,
		PortRange: a.opts.reloadRange,
		WatchDirs: a.WatchDirs(),
		Filters:   []watcher.FileFilter{watcher.NoGitFilter, watcher.NoEditorTempFilter},
	}, a.dev,
		reload.WithLogger(a.logger),
		reload.WithMetrics(a.metrics))

	a.mu.Lock()
	a.coordinator = c
	a.mu.Unlock()
	return c
}

// ReloadSessions returns how many browsers are connected to live reload.
func (a *App) ReloadSessions() int {
	a.mu.Lock()
	c := a.coordinator
	a.mu.Unlock()
	if c == nil {
		return 0
	}
	return c.Sessions()
}

func (a *App) banner(addr string) {
	ctx := context.Background()
	a.logger.Info(ctx, "server starting",
		"addr", addr,
		"static_dirs", strings.Join(a.StaticDirs(), ","),
		"routes", a.table.Len(),
		"dev_mode", a.dev.Enabled())

	w := a.opts.output
	if w == nil {
		return
	}
	fmt.Fprintf(w, "velto listening on http://%s\n", addr)
	if dirs := a.StaticDirs(); len(dirs) > 0 {
		fmt.Fprintf(w, "  static: %s\n", strings.Join(dirs, ", "))
	}
	for _, route := range a.Routes() {
		fmt.Fprintf(w, "  %-7s %s\n", route.Method, route.Path)
	}
	if a.dev.Enabled() {
		fmt.Fprintf(w, "  live reload: ws://%s\n", a.dev.ReloadAddr())
	}
}
