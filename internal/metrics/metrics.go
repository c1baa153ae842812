package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vpa-analyzer/internal/model"
)

// Metrics holds all Prometheus metrics for the analyzer. It satisfies
// analyzer.Observer so it can be plugged straight into a run.
type Metrics struct {
	BarsProcessed *prometheus.CounterVec // labels: symbol
	BarsRejected  *prometheus.CounterVec // labels: symbol
	TrendSkips    *prometheus.CounterVec // labels: symbol
	ComputeDur    prometheus.Histogram

	SignalsTotal *prometheus.CounterVec // labels: symbol, direction, recommendation
	LastScore    *prometheus.GaugeVec   // labels: symbol
	SinkErrors   *prometheus.CounterVec // labels: sink

	// 0=closed, 1=open, 2=half-open
	CircuitBreakerState *prometheus.GaugeVec // labels: name

	health *HealthStatus
}

// NewMetrics creates the analyzer metrics and registers them on reg.
// health may be nil.
func NewMetrics(reg prometheus.Registerer, health *HealthStatus) *Metrics {
	m := &Metrics{
		BarsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vpa_bars_processed_total",
			Help: "Bars accepted into the rolling windows",
		}, []string{"symbol"}),
		BarsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vpa_bars_rejected_total",
			Help: "Bars rejected at the boundary (non-finite values)",
		}, []string{"symbol"}),
		TrendSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vpa_trend_skipped_total",
			Help: "Signals composed without trend scoring (insufficient ADX data)",
		}, []string{"symbol"}),
		ComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vpa_bar_compute_duration_seconds",
			Help:    "Analysis latency per bar",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vpa_signals_total",
			Help: "Signals emitted",
		}, []string{"symbol", "direction", "recommendation"}),
		LastScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vpa_signal_score",
			Help: "Most recent signal score",
		}, []string{"symbol"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vpa_sink_errors_total",
			Help: "Failed result deliveries (by sink)",
		}, []string{"sink"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vpa_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open",
		}, []string{"name"}),
		health: health,
	}

	reg.MustRegister(
		m.BarsProcessed,
		m.BarsRejected,
		m.TrendSkips,
		m.ComputeDur,
		m.SignalsTotal,
		m.LastScore,
		m.SinkErrors,
		m.CircuitBreakerState,
	)
	return m
}

func (m *Metrics) BarProcessed(symbol string, elapsed time.Duration) {
	m.BarsProcessed.WithLabelValues(symbol).Inc()
	m.ComputeDur.Observe(elapsed.Seconds())
	if m.health != nil {
		m.health.barSeen()
	}
}

func (m *Metrics) BarRejected(symbol string, _ error) {
	m.BarsRejected.WithLabelValues(symbol).Inc()
}

func (m *Metrics) SignalEmitted(r *model.SignalResult) {
	m.SignalsTotal.WithLabelValues(r.Symbol, r.Direction, string(r.Recommendation)).Inc()
	m.LastScore.WithLabelValues(r.Symbol).Set(r.Score)
	if m.health != nil {
		m.health.SetReady(true)
	}
}

func (m *Metrics) TrendSkipped(symbol string, _ error) {
	m.TrendSkips.WithLabelValues(symbol).Inc()
}

func (m *Metrics) SinkFailed(_ string, sink string, _ error) {
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// SetBreakerState records a circuit breaker transition.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	Ready          bool
	BarsProcessed  int64
	LastBarAt      time.Time
	RedisEnabled   bool
	RedisConnected bool
	SQLiteEnabled  bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) barSeen() {
	h.mu.Lock()
	h.BarsProcessed++
	h.LastBarAt = time.Now()
	h.mu.Unlock()
}

// SetReady marks that the long window has saturated and signals are flowing.
func (h *HealthStatus) SetReady(v bool) {
	h.mu.Lock()
	h.Ready = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
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
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either client may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
// A store that is enabled but failing makes the service degraded (503).
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if (h.RedisEnabled && !h.RedisConnected) || (h.SQLiteEnabled && !h.SQLiteOK) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	lastBar := ""
	if !h.LastBarAt.IsZero() {
		lastBar = h.LastBarAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Ready           bool    `json:"ready"`
		BarsProcessed   int64   `json:"bars_processed"`
		LastBarAt       string  `json:"last_bar_at"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Ready:           h.Ready,
		BarsProcessed:   h.BarsProcessed,
		LastBarAt:       lastBar,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  zerolog.Logger
}

// NewServer creates a metrics and health server over gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, health *HealthStatus, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.With().Str("component", "metrics").Logger(),
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("server listening")
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("server error")
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
