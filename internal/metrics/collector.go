package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/objectfs/meshcast/internal/config"
	"github.com/objectfs/meshcast/pkg/errors"
)

// Send modes used as the "mode" label of sent messages.
const (
	ModeReply  = "reply"
	ModeFanout = "fanout"
	ModeRetry  = "retry"
	ModeSync   = "sync"
)

// Collector records dissemination metrics
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *zap.Logger

	// Prometheus metrics
	receivedCounter  *prometheus.CounterVec
	sentCounter      *prometheus.CounterVec
	retransmissions  prometheus.Counter
	errorCounter     *prometheus.CounterVec
	handleDuration   *prometheus.HistogramVec
	inflightGauge    prometheus.Gauge
	knownValuesGauge prometheus.Gauge
	pendingReads     prometheus.Gauge
	linksGauge       prometheus.Gauge

	// Internal tracking
	received  map[string]int64
	sent      map[string]int64
	errors    map[string]int64
	retried   int64
	lastReset time.Time

	// HTTP server for metrics endpoint
	server   *http.Server
	listener net.Listener
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
	Subsystem string            `yaml:"subsystem"`
}

// ConfigFrom converts the monitoring section of the node configuration.
func ConfigFrom(cfg config.MetricsConfig, labels map[string]string) *Config {
	return &Config{
		Enabled:   cfg.Enabled,
		Port:      cfg.Port,
		Path:      cfg.Path,
		Namespace: cfg.Namespace,
		Labels:    labels,
	}
}

// Stats is a point-in-time copy of the internal counters.
type Stats struct {
	Received        map[string]int64 `json:"received"`
	Sent            map[string]int64 `json:"sent"`
	Errors          map[string]int64 `json:"errors"`
	Retransmissions int64            `json:"retransmissions"`
	LastReset       time.Time        `json:"last_reset"`
	Uptime          time.Duration    `json:"uptime"`
}

// NewCollector creates a new metrics collector
func NewCollector(cfg *Config, logger *zap.Logger) (*Collector, error) {
	if cfg == nil {
		cfg = &Config{
			Enabled:   true,
			Path:      "/metrics",
			Namespace: "meshcast",
			Labels:    make(map[string]string),
		}
	}
	if cfg.Path == "" {
		cfg.Path = "/metrics"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.Enabled {
		return &Collector{config: cfg, logger: logger}, nil
	}

	collector := &Collector{
		config:    cfg,
		registry:  prometheus.NewRegistry(),
		logger:    logger.Named("metrics"),
		received:  make(map[string]int64),
		sent:      make(map[string]int64),
		errors:    make(map[string]int64),
		lastReset: time.Now(),
	}

	collector.initMetrics()

	if err := collector.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return collector, nil
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c != nil && c.config.Enabled
}

// Registry returns the Prometheus registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Start exposes the metrics over HTTP when a port is configured.
func (c *Collector) Start(ctx context.Context) error {
	if !c.Enabled() || c.config.Port <= 0 {
		return nil
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", c.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on metrics port %d: %w", c.config.Port, err)
	}

	c.listener = listener
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			c.logger.Error("metrics server error", zap.Error(err))
		}
	}()

	c.logger.Info("serving metrics", zap.String("addr", listener.Addr().String()), zap.String("path", c.config.Path))
	return nil
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler serving the metrics, health and debug
// endpoints.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.registry != nil {
		mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)
	mux.HandleFunc("/debug/messages", c.debugMessagesHandler)
	return mux
}

// RecordReceived counts an inbound message.
func (c *Collector) RecordReceived(msgType string) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.received[msgType]++
	c.mu.Unlock()

	c.receivedCounter.With(prometheus.Labels{"type": msgType}).Inc()
}

// RecordSent counts an outbound message. Retry sends also count as
// retransmissions.
func (c *Collector) RecordSent(msgType, mode string) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.sent[msgType+"/"+mode]++
	if mode == ModeRetry {
		c.retried++
	}
	c.mu.Unlock()

	c.sentCounter.With(prometheus.Labels{"type": msgType, "mode": mode}).Inc()
	if mode == ModeRetry {
		c.retransmissions.Inc()
	}
}

// RecordHandled observes how long handling a message of msgType took.
func (c *Collector) RecordHandled(msgType string, duration time.Duration) {
	if !c.Enabled() {
		return
	}

	c.handleDuration.With(prometheus.Labels{"type": msgType}).Observe(duration.Seconds())
}

// RecordError counts a protocol-level error that was logged and dropped.
func (c *Collector) RecordError(operation string, err error) {
	if !c.Enabled() {
		return
	}

	kind := c.classifyError(err)

	c.mu.Lock()
	c.errors[operation+"/"+kind]++
	c.mu.Unlock()

	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"code":      kind,
	}).Inc()
}

// UpdateInflight sets the number of unacknowledged peer messages.
func (c *Collector) UpdateInflight(count int) {
	if !c.Enabled() {
		return
	}
	c.inflightGauge.Set(float64(count))
}

// UpdateKnownValues sets the number of values this node knows.
func (c *Collector) UpdateKnownValues(count int) {
	if !c.Enabled() {
		return
	}
	c.knownValuesGauge.Set(float64(count))
}

// UpdatePendingReads sets the number of deferred client reads.
func (c *Collector) UpdatePendingReads(count int) {
	if !c.Enabled() {
		return
	}
	c.pendingReads.Set(float64(count))
}

// UpdateLinks sets the number of peer links.
func (c *Collector) UpdateLinks(count int) {
	if !c.Enabled() {
		return
	}
	c.linksGauge.Set(float64(count))
}

// GetStats returns a copy of the internal counters
func (c *Collector) GetStats() Stats {
	if !c.Enabled() {
		return Stats{}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Received:        copyCounts(c.received),
		Sent:            copyCounts(c.sent),
		Errors:          copyCounts(c.errors),
		Retransmissions: c.retried,
		LastReset:       c.lastReset,
		Uptime:          time.Since(c.lastReset),
	}
	return stats
}

// ResetStats resets the internal counters. Prometheus series are untouched.
func (c *Collector) ResetStats() {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.received = make(map[string]int64)
	c.sent = make(map[string]int64)
	c.errors = make(map[string]int64)
	c.retried = 0
	c.lastReset = time.Now()
}

// Helper methods

func (c *Collector) initMetrics() {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: c.config.Labels,
		}
	}

	c.receivedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("messages_received_total", "Total number of inbound messages by type")),
		[]string{"type"},
	)

	c.sentCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("messages_sent_total", "Total number of outbound messages by type and send mode")),
		[]string{"type", "mode"},
	)

	c.retransmissions = prometheus.NewCounter(
		prometheus.CounterOpts(opts("retransmissions_total", "Total number of retransmitted peer messages")),
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts(opts("protocol_errors_total", "Total number of dropped protocol errors")),
		[]string{"operation", "code"},
	)

	c.handleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   c.config.Namespace,
			Subsystem:   c.config.Subsystem,
			Name:        "handle_duration_seconds",
			Help:        "Time spent handling one inbound message",
			ConstLabels: c.config.Labels,
			Buckets:     prometheus.ExponentialBuckets(0.00001, 2, 15), // 10µs to ~160ms
		},
		[]string{"type"},
	)

	c.inflightGauge = prometheus.NewGauge(
		prometheus.GaugeOpts(opts("inflight_messages", "Unacknowledged messages awaiting retry")),
	)

	c.knownValuesGauge = prometheus.NewGauge(
		prometheus.GaugeOpts(opts("known_values", "Distinct values known to this node")),
	)

	c.pendingReads = prometheus.NewGauge(
		prometheus.GaugeOpts(opts("pending_reads", "Client reads waiting to settle")),
	)

	c.linksGauge = prometheus.NewGauge(
		prometheus.GaugeOpts(opts("topology_links", "Peer links of this node")),
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.receivedCounter,
		c.sentCounter,
		c.retransmissions,
		c.errorCounter,
		c.handleDuration,
		c.inflightGauge,
		c.knownValuesGauge,
		c.pendingReads,
		c.linksGauge,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}

func (c *Collector) classifyError(err error) string {
	if code, ok := errors.CodeOf(err); ok {
		return string(code)
	}
	return "other"
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// HTTP handlers

func (c *Collector) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy","service":"meshcast-metrics"}`)) // Ignore write error for health check
}

func (c *Collector) debugMessagesHandler(w http.ResponseWriter, r *http.Request) {
	stats := c.GetStats()

	w.Header().Set("Content-Type", "text/plain")

	// Helper to avoid errcheck issues
	writef := func(format string, args ...interface{}) { _, _ = fmt.Fprintf(w, format, args...) }

	writef("Meshcast Message Summary\n")
	writef("========================\n\n")
	writef("Uptime: %v\n", stats.Uptime)
	writef("Retransmissions: %d\n\n", stats.Retransmissions)

	section := func(title string, counts map[string]int64) {
		writef("%s\n", title)
		if len(counts) == 0 {
			writef("  none\n\n")
			return
		}
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writef("  %-24s %10d\n", k, counts[k])
		}
		writef("\n")
	}
	section("Received", stats.Received)
	section("Sent", stats.Sent)
	section("Errors", stats.Errors)
}
