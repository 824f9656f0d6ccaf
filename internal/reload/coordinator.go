// Package reload runs the live-reload subsystem: it negotiates a port for
// the notification hub, starts the hub and the file watcher, and connects
// watcher events to the broadcast channel that feeds every browser session.
//
// Failures here never stop the application. An exhausted port range falls
// back to the base port, and a watcher that cannot start leaves the hub
// running without change signals.
package reload

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/velto/internal/broadcast"
	"github.com/conneroisu/velto/internal/devmode"
	"github.com/conneroisu/velto/internal/errors"
	"github.com/conneroisu/velto/internal/hub"
	"github.com/conneroisu/velto/internal/logging"
	"github.com/conneroisu/velto/internal/metrics"
	"github.com/conneroisu/velto/internal/watcher"
)

// State is the coordinator lifecycle.
type State int32

const (
	StateIdle State = iota
	StatePortNegotiation
	StateRunning
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePortNegotiation:
		return "port_negotiation"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// DefaultHost is the interface the hub binds to.
const DefaultHost = "127.0.0.1"

// Config describes what the coordinator watches and where it listens.
type Config struct {
	Host      string
	BasePort  int
	PortRange int
	// WatchDirs are watched recursively. Entries that do not exist at start
	// are skipped.
	WatchDirs []string
	Filters   []watcher.FileFilter
}

// Coordinator owns the live-reload goroutines.
type Coordinator struct {
	config  Config
	dev     *devmode.State
	channel *broadcast.Channel
	hub     *hub.NotificationHub
	logger  logging.Logger
	metrics *metrics.Collector

	state    atomic.Int32
	port     atomic.Int32
	started  atomic.Bool
	serving  atomic.Bool
	watching atomic.Bool
	wg       sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger.WithComponent("reload")
	}
}

// WithMetrics records reload activity on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithChannel uses channel instead of a fresh one.
func WithChannel(channel *broadcast.Channel) Option {
	return func(c *Coordinator) {
		c.channel = channel
	}
}

// New creates an idle coordinator that publishes its port into dev.
func New(config Config, dev *devmode.State, opts ...Option) *Coordinator {
	if dev == nil {
		panic("reload: dev mode state cannot be nil")
	}
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.BasePort <= 0 {
		config.BasePort = dev.BasePort()
	}
	if config.PortRange <= 0 {
		config.PortRange = devmode.DefaultPortRange
	}

	c := &Coordinator{
		config: config,
		dev:    dev,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.channel == nil {
		c.channel = broadcast.New(broadcast.DefaultCapacity)
	}
	c.hub = hub.New(c.channel, hub.WithLogger(c.logger), hub.WithMetrics(c.metrics))
	return c
}

// Start negotiates the port and launches the hub and the watcher. It returns
// once both are running; they stop when ctx is cancelled. Only the first
// call has any effect.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return nil
	}

	c.state.Store(int32(StatePortNegotiation))
	ln, port := c.negotiate(ctx)
	if !c.dev.SetReloadPort(port) {
		if published := c.dev.ReloadPort(); published != port {
			ln, port = c.rebind(ctx, ln, port, published)
		}
	}
	c.port.Store(int32(port))

	if ln != nil {
		c.serving.Store(true)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer c.serving.Store(false)
			if err := c.hub.Serve(ctx, ln); err != nil {
				c.logger.Error(ctx, err, "live reload hub stopped")
			}
		}()
	}

	c.startWatcher(ctx)

	c.state.Store(int32(StateRunning))
	return nil
}

// Run starts the coordinator and blocks until ctx is cancelled and every
// goroutine it started has exited.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	c.wg.Wait()
	return nil
}

// negotiate finds a listener for the hub. On exhaustion it retries the base
// port once; if that fails too the hub is not started.
func (c *Coordinator) negotiate(ctx context.Context) (net.Listener, int) {
	ln, port, err := NegotiatePort(c.config.Host, c.config.BasePort, c.config.PortRange)
	if err == nil {
		return ln, port
	}

	c.logger.Warn(ctx, err, "live reload port range exhausted, falling back to base port",
		"base", c.config.BasePort, "range", c.config.PortRange)

	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(port))
	ln, err = net.Listen("tcp", addr)
	if err != nil {
		c.logger.Error(ctx, errors.NewNetworkError(errors.ErrCodePortRangeExhausted, "binding fallback port", err),
			"live reload unavailable", "addr", addr)
		return nil, port
	}
	return ln, port
}

// rebind moves the hub onto the port pages already point at. If that port
// cannot be bound the negotiated listener is kept and injected clients will
// not reach the hub.
func (c *Coordinator) rebind(ctx context.Context, ln net.Listener, negotiated, published int) (net.Listener, int) {
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(published))
	moved, err := net.Listen("tcp", addr)
	if err != nil {
		c.logger.Error(ctx, errors.NewNetworkError(errors.ErrCodeReloadPortMismatch, "binding published reload port", err),
			"live reload clients cannot reach the hub",
			"published", published, "negotiated", negotiated)
		return ln, negotiated
	}
	if ln != nil {
		_ = ln.Close()
	}
	c.logger.Info(ctx, "reload port already published, moved hub to it",
		"published", published, "negotiated", negotiated)
	return moved, published
}

// startWatcher wires filesystem events to the broadcast channel. Failure
// leaves live reload without change signals.
func (c *Coordinator) startWatcher(ctx context.Context) {
	fw, err := watcher.NewFileWatcher(c.logger)
	if err != nil {
		c.logger.Error(ctx, err, "file watcher unavailable, live reload disabled")
		return
	}

	for _, filter := range c.config.Filters {
		fw.AddFilter(filter)
	}
	fw.AddHandler(func(event watcher.ChangeEvent) error {
		c.metrics.WatchEvent(event.Type.String())
		c.Trigger()
		c.logger.Debug(ctx, "file change detected", "event", event.String())
		return nil
	})

	watched := 0
	for _, dir := range c.config.WatchDirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			c.logger.Debug(ctx, "skipping missing watch directory", "dir", dir)
			continue
		}
		if err := fw.AddRecursive(dir); err != nil {
			c.logger.Warn(ctx, err, "could not watch directory", "dir", dir)
			continue
		}
		watched++
		c.logger.Info(ctx, "watching", "dir", dir)
	}

	if err := fw.Start(ctx); err != nil {
		c.logger.Error(ctx, fmt.Errorf("starting file watcher: %w", err), "live reload disabled")
		_ = fw.Stop()
		return
	}
	c.watching.Store(true)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		<-ctx.Done()
		_ = fw.Stop()
		<-fw.Done()
		c.watching.Store(false)
	}()

	if watched == 0 {
		c.logger.Info(ctx, "no watch directories exist yet, nothing will trigger reloads")
	}
}

// Trigger publishes one reload signal.
func (c *Coordinator) Trigger() {
	c.channel.Publish()
	c.metrics.ReloadSignal()
}

// State returns the lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Port returns the negotiated port, or 0 before Start.
func (c *Coordinator) Port() int {
	return int(c.port.Load())
}

// Channel returns the broadcast channel feeding the hub.
func (c *Coordinator) Channel() *broadcast.Channel {
	return c.channel
}

// Serving reports whether the hub is accepting sessions.
func (c *Coordinator) Serving() bool {
	return c.serving.Load()
}

// Watching reports whether the file watcher is running.
func (c *Coordinator) Watching() bool {
	return c.watching.Load()
}

// Sessions returns the number of connected browsers.
func (c *Coordinator) Sessions() int {
	return c.hub.Sessions()
}
