// Package devmode holds the development-mode toggle and the negotiated
// live-reload port. A State is created once per application and shared by
// reference with the dispatcher, the static resolver and the renderer.
package devmode

import (
	"net"
	"strconv"
	"sync/atomic"
)

const (
	// DefaultReloadPort is the first port tried for the live-reload listener.
	DefaultReloadPort = 35729
	// DefaultPortRange is how many consecutive ports are tried.
	DefaultPortRange = 100
	// ClientHost is the host the browser dials when the hub listens on a
	// loopback or wildcard address.
	ClientHost = "localhost"
)

// State is safe for concurrent use.
type State struct {
	enabled  atomic.Bool
	port     atomic.Int32
	basePort int
	host     string
}

// Option configures a State.
type Option func(*State)

// WithReloadHost records the interface the live-reload hub binds to.
func WithReloadHost(host string) Option {
	return func(s *State) {
		s.host = host
	}
}

// New returns a disabled State whose reload port defaults to basePort
// (DefaultReloadPort when basePort is not a valid port).
func New(basePort int, opts ...Option) *State {
	if basePort <= 0 || basePort > 65535 {
		basePort = DefaultReloadPort
	}
	s := &State{basePort: basePort}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enable turns development mode on. It cannot be turned off again.
func (s *State) Enable() {
	s.enabled.Store(true)
}

// Enabled reports whether development mode is on. A nil State is disabled.
func (s *State) Enabled() bool {
	if s == nil {
		return false
	}
	return s.enabled.Load()
}

// SetReloadPort publishes the negotiated port. Only the first call with a
// valid port takes effect; it reports whether this call won.
func (s *State) SetReloadPort(port int) bool {
	if port <= 0 || port > 65535 {
		return false
	}
	return s.port.CompareAndSwap(0, int32(port))
}

// ReloadPort returns the negotiated port, or the base port if none has been
// published yet.
func (s *State) ReloadPort() int {
	if s == nil {
		return DefaultReloadPort
	}
	if p := s.port.Load(); p != 0 {
		return int(p)
	}
	return s.basePort
}

// BasePort returns the port negotiation starts from.
func (s *State) BasePort() int {
	return s.basePort
}

// ReloadHost returns the host browsers dial to reach the hub. Loopback and
// wildcard bind addresses map to ClientHost.
func (s *State) ReloadHost() string {
	if s == nil || s.host == "" || s.host == ClientHost {
		return ClientHost
	}
	if ip := net.ParseIP(s.host); ip != nil && (ip.IsLoopback() || ip.IsUnspecified()) {
		return ClientHost
	}
	return s.host
}

// ReloadAddr returns the host:port the live-reload client connects to.
func (s *State) ReloadAddr() string {
	return net.JoinHostPort(s.ReloadHost(), strconv.Itoa(s.ReloadPort()))
}
