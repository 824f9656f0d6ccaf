// Package metrics exposes Prometheus instrumentation for request dispatch and
// live reload. A nil *Collector is valid and records nothing, so components
// can be built without metrics in tests and embedded use.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes used as the "outcome" label.
const (
	OutcomeRoute          = "route"
	OutcomeStatic         = "static"
	OutcomeNotFound       = "not_found"
	OutcomePanic          = "panic"
	OutcomeMethodRejected = "method_rejected"
	OutcomeBodyTooLarge   = "body_too_large"
	OutcomeBadRequest     = "bad_request"
)

// Config configures the collector.
type Config struct {
	// Namespace is the metrics namespace (default: "velto").
	Namespace string

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is where the metrics are registered.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "velto",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds every velto metric.
type Collector struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	reloadSignals   prometheus.Counter
	watchEvents     *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// New registers the velto metrics with the configured registry. Registering
// twice against the same registry panics, as with promauto.
func New(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests dispatched, by method and outcome",
		}, []string{"method", "outcome"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "request_duration_seconds",
			Help:      "Request dispatch duration in seconds",
			Buckets:   config.Buckets,
		}, []string{"outcome"}),

		reloadSignals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "reload_signals_total",
			Help:      "Total number of reload signals published",
		}),

		watchEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "watch_events_total",
			Help:      "Total filesystem events observed by the watcher, by type",
		}, []string{"type"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "reload_sessions_active",
			Help:      "Number of connected live-reload sessions",
		}),
	}
}

// ObserveRequest records one dispatched request.
func (c *Collector) ObserveRequest(method, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, outcome).Inc()
	c.requestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ReloadSignal records a published reload signal.
func (c *Collector) ReloadSignal() {
	if c == nil {
		return
	}
	c.reloadSignals.Inc()
}

// WatchEvent records a filesystem event of the given type.
func (c *Collector) WatchEvent(eventType string) {
	if c == nil {
		return
	}
	c.watchEvents.WithLabelValues(eventType).Inc()
}

// SessionOpened increments the active session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
}
