// Package hub pushes reload notifications to connected browsers over
// WebSocket.
//
// Each accepted connection becomes a session with its own broadcast
// subscription. A session ends when the peer goes away, a write fails, or the
// hub is closed. A failing or slow session never holds up the others.
package hub

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/velto/internal/broadcast"
	"github.com/conneroisu/velto/internal/logging"
	"github.com/conneroisu/velto/internal/metrics"
)

// ReloadMessage is the text frame sent for every signal.
const ReloadMessage = "reload"

// DefaultWriteTimeout bounds a single frame write.
const DefaultWriteTimeout = 5 * time.Second

// NotificationHub serves live-reload sessions.
type NotificationHub struct {
	channel        *broadcast.Channel
	logger         logging.Logger
	metrics        *metrics.Collector
	writeTimeout   time.Duration
	originPatterns []string

	sessions atomic.Int64
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures the hub.
type Option func(*NotificationHub)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(h *NotificationHub) {
		h.logger = logger.WithComponent("hub")
	}
}

// WithMetrics records session counts on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(h *NotificationHub) {
		h.metrics = c
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *NotificationHub) {
		h.writeTimeout = d
	}
}

// WithOriginPatterns restricts which page origins may connect. The default
// accepts any origin, since the page is served from a different port.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *NotificationHub) {
		h.originPatterns = patterns
	}
}

// New creates a hub fed by channel.
func New(channel *broadcast.Channel, opts ...Option) *NotificationHub {
	if channel == nil {
		panic("hub: broadcast channel cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &NotificationHub{
		channel:        channel,
		logger:         logging.NewNop(),
		writeTimeout:   DefaultWriteTimeout,
		originPatterns: []string{"*"},
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the connection and runs its session until it ends.
// A failed handshake only affects this connection.
func (h *NotificationHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		// Accept has already written the error response.
		h.logger.Warn(r.Context(), err, "websocket handshake failed", "remote", r.RemoteAddr)
		return
	}

	h.runSession(r.Context(), conn, r.RemoteAddr)
}

// runSession forwards every broadcast signal to conn as a reload frame.
func (h *NotificationHub) runSession(reqCtx context.Context, conn *websocket.Conn, remote string) {
	sub := h.channel.Subscribe()
	defer sub.Close()

	h.sessions.Add(1)
	h.metrics.SessionOpened()
	defer func() {
		h.sessions.Add(-1)
		h.metrics.SessionClosed()
	}()

	// CloseRead discards inbound frames and cancels ctx when the peer leaves.
	ctx := conn.CloseRead(reqCtx)
	h.logger.Debug(ctx, "reload session opened", "remote", remote)

	for {
		select {
		case <-ctx.Done():
			_ = conn.CloseNow()
			h.logger.Debug(context.Background(), "reload session closed by peer", "remote", remote)
			return

		case <-h.ctx.Done():
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case _, ok := <-sub.C():
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "reload channel closed")
				return
			}
			if err := h.send(ctx, conn); err != nil {
				h.logger.Warn(context.Background(), err, "reload send failed, ending session", "remote", remote)
				_ = conn.CloseNow()
				return
			}
		}
	}
}

func (h *NotificationHub) send(ctx context.Context, conn *websocket.Conn) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, []byte(ReloadMessage))
}

// Sessions returns the number of live sessions.
func (h *NotificationHub) Sessions() int {
	return int(h.sessions.Load())
}

// Serve accepts sessions on ln until ctx is cancelled, then closes every
// session and returns.
func (h *NotificationHub) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return h.ctx },
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
		case <-h.ctx.Done():
		}
		h.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	h.logger.Info(ctx, "live reload listening", "addr", "ws://"+ln.Addr().String())

	err := srv.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		// The listener failed on its own; unblock the shutdown goroutine.
		h.cancel()
	}
	<-stopped
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close ends every session and waits for them to finish. New connections are
// refused afterwards.
func (h *NotificationHub) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()
	h.wg.Wait()
}
