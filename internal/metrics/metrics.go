package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the journal server.
// Every recording method is safe to call on a nil *Metrics.
type Metrics struct {
	// Live broadcast layer
	BroadcastsTotal   *prometheus.CounterVec // labels: type
	SendDropsTotal    prometheus.Counter
	ActiveConnections prometheus.Gauge
	ActiveTopics      prometheus.Gauge
	PriceStreams      prometheus.Gauge
	RelayMessages     prometheus.Counter

	// Quote provider
	QuoteFetchDur  prometheus.Histogram
	QuoteFailures  *prometheus.CounterVec // labels: kind
	CandleCacheHit *prometheus.CounterVec // labels: result=hit|miss

	// P&L
	LivePnLRuns      prometheus.Counter
	LivePnLPositions prometheus.Histogram

	// HTTP
	HTTPRequests *prometheus.CounterVec   // labels: route, status
	HTTPDuration *prometheus.HistogramVec // labels: route

	// Circuit breakers
	BreakerState *prometheus.GaugeVec   // labels: name; 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: name
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_broadcasts_total",
			Help: "Envelopes fanned out to live subscribers, by envelope type",
		}, []string{"type"}),
		SendDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_ws_send_drops_total",
			Help: "Envelopes discarded because a connection was closed or its buffer was full",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journal_ws_connections",
			Help: "Websocket connections currently registered under a topic",
		}),
		ActiveTopics: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journal_ws_topics",
			Help: "Topics with at least one registered connection",
		}),
		PriceStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journal_price_streams",
			Help: "Price streaming loops currently running",
		}),
		RelayMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_relay_messages_total",
			Help: "Envelopes received from the Redis broadcast relay",
		}),

		QuoteFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "journal_quote_fetch_duration_seconds",
			Help:    "Latency of quote provider calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		QuoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_quote_failures_total",
			Help: "Quote fetch failures by kind",
		}, []string{"kind"}),
		CandleCacheHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_candle_cache_total",
			Help: "Historical candle cache lookups",
		}, []string{"result"}),

		LivePnLRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_live_pnl_runs_total",
			Help: "Live P&L computations",
		}),
		LivePnLPositions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "journal_live_pnl_positions",
			Help:    "Open positions per live P&L computation",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "journal_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "journal_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.BroadcastsTotal,
		m.SendDropsTotal,
		m.ActiveConnections,
		m.ActiveTopics,
		m.PriceStreams,
		m.RelayMessages,
		m.QuoteFetchDur,
		m.QuoteFailures,
		m.CandleCacheHit,
		m.LivePnLRuns,
		m.LivePnLPositions,
		m.HTTPRequests,
		m.HTTPDuration,
		m.BreakerState,
		m.BreakerTrips,
	)

	return m
}

func (m *Metrics) Broadcast(envType string) {
	if m == nil {
		return
	}
	m.BroadcastsTotal.WithLabelValues(envType).Inc()
}

func (m *Metrics) SendDropped() {
	if m == nil {
		return
	}
	m.SendDropsTotal.Inc()
}

// SetRegistry records the registry's current connection and topic counts.
func (m *Metrics) SetRegistry(connections, topics int) {
	if m == nil {
		return
	}
	m.ActiveConnections.Set(float64(connections))
	m.ActiveTopics.Set(float64(topics))
}

func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.PriceStreams.Inc()
}

func (m *Metrics) StreamStopped() {
	if m == nil {
		return
	}
	m.PriceStreams.Dec()
}

func (m *Metrics) Relayed() {
	if m == nil {
		return
	}
	m.RelayMessages.Inc()
}

// ObserveQuote records a provider call; kind is "" on success.
func (m *Metrics) ObserveQuote(d time.Duration, kind string) {
	if m == nil {
		return
	}
	m.QuoteFetchDur.Observe(d.Seconds())
	if kind != "" {
		m.QuoteFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) CandleCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CandleCacheHit.WithLabelValues("hit").Inc()
	} else {
		m.CandleCacheHit.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) LivePnL(positions int) {
	if m == nil {
		return
	}
	m.LivePnLRuns.Inc()
	m.LivePnLPositions.Observe(float64(positions))
}

func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// BreakerChanged records a circuit breaker transition. to follows the breaker's numeric states.
func (m *Metrics) BreakerChanged(name string, to int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(to))
	if to == 1 {
		m.BreakerTrips.WithLabelValues(name).Inc()
	}
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK       bool      `json:"sqlite_ok"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	QuoteSource    string    `json:"quote_source"`
	LastQuoteOK    time.Time `json:"last_quote_ok"`
	LastQuoteError string    `json:"last_quote_error"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(quoteSource string, redisEnabled bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:    time.Now(),
		QuoteSource:  quoteSource,
		RedisEnabled: redisEnabled,
	}
}

// RecordQuote notes the outcome of the latest provider call.
func (h *HealthStatus) RecordQuote(err error) {
	if h == nil {
		return
	}
	h.mu.Lock()
	if err == nil {
		h.LastQuoteOK = time.Now()
		h.LastQuoteError = ""
	} else {
		h.LastQuoteError = err.Error()
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// Probe runs all dependency checks once.
func (h *HealthStatus) Probe(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB) {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if rdb != nil {
		h.CheckRedis(probeCtx, rdb)
	}
	if sqlDB != nil {
		h.CheckSQLite(probeCtx, sqlDB)
	}
}

// StartLivenessChecker runs periodic dependency checks until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	h.Probe(ctx, rdb, sqlDB)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Probe(ctx, rdb, sqlDB)
			}
		}
	}()
}

// Report is a point-in-time copy of the health status.
type Report struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	QuoteSource     string  `json:"quote_source"`
	LastQuoteOK     string  `json:"last_quote_ok,omitempty"`
	LastQuoteError  string  `json:"last_quote_error,omitempty"`
	LastCheckAt     string  `json:"last_check_at"`
}

// Snapshot summarises health. Redis only degrades status when it is configured.
func (h *HealthStatus) Snapshot() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.SQLiteOK || (h.RedisEnabled && !h.RedisConnected) {
		status = "degraded"
	}
	if !h.SQLiteOK && h.RedisEnabled && !h.RedisConnected {
		status = "unhealthy"
	}

	r := Report{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		QuoteSource:     h.QuoteSource,
		LastQuoteError:  h.LastQuoteError,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}
	if !h.LastQuoteOK.IsZero() {
		r.LastQuoteOK = h.LastQuoteOK.Format(time.RFC3339)
	}
	return r
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rep := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if rep.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(rep)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
	log    *slog.Logger
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		log:    log.With(slog.String("component", "metrics")),
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
