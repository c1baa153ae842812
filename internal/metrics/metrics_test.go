package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"vpa-analyzer/internal/analyzer"
	"vpa-analyzer/internal/model"
)

var _ analyzer.Observer = (*Metrics)(nil)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry, *HealthStatus) {
	t.Helper()
	reg := prometheus.NewRegistry()
	h := NewHealthStatus()
	return NewMetrics(reg, h), reg, h
}

func TestObserverCounters(t *testing.T) {
	m, _, h := newTestMetrics(t)

	m.BarProcessed("SPY", time.Millisecond)
	m.BarProcessed("SPY", time.Millisecond)
	m.BarRejected("SPY", errors.New("nan"))
	m.TrendSkipped("SPY", errors.New("short"))
	m.SinkFailed("SPY", "redis", errors.New("down"))
	m.SignalEmitted(&model.SignalResult{
		Symbol: "SPY", Score: 17.5, Direction: "BUY", Recommendation: model.RecommendBuy,
	})

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"processed", testutil.ToFloat64(m.BarsProcessed.WithLabelValues("SPY")), 2},
		{"rejected", testutil.ToFloat64(m.BarsRejected.WithLabelValues("SPY")), 1},
		{"trend skipped", testutil.ToFloat64(m.TrendSkips.WithLabelValues("SPY")), 1},
		{"sink errors", testutil.ToFloat64(m.SinkErrors.WithLabelValues("redis")), 1},
		{"signals", testutil.ToFloat64(m.SignalsTotal.WithLabelValues("SPY", "BUY", "BUY")), 1},
		{"last score", testutil.ToFloat64(m.LastScore.WithLabelValues("SPY")), 17.5},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if h.BarsProcessed != 2 || !h.Ready {
		t.Errorf("health = %+v", h)
	}
}

func TestTrendSkipsRegistered(t *testing.T) {
	m, reg, _ := newTestMetrics(t)
	m.TrendSkipped("QQQ", errors.New("short"))
	m.TrendSkipped("QQQ", errors.New("short"))

	n, err := testutil.GatherAndCount(reg, "vpa_trend_skipped_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one vpa_trend_skipped_total series, got %d", n)
	}
	if got := testutil.ToFloat64(m.TrendSkips.WithLabelValues("QQQ")); got != 2 {
		t.Fatalf("trend skips = %v, want 2", got)
	}
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *HealthStatus)
		code   int
		status string
	}{
		{"no stores", func(*HealthStatus) {}, http.StatusOK, "healthy"},
		{"sqlite down", func(h *HealthStatus) { h.SQLiteEnabled = true }, http.StatusServiceUnavailable, "degraded"},
		{"redis up", func(h *HealthStatus) { h.RedisEnabled, h.RedisConnected = true, true }, http.StatusOK, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthStatus()
			tt.setup(h)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tt.status {
				t.Errorf("status = %q, want %q", body.Status, tt.status)
			}
		})
	}
}

func TestServerExposesMetrics(t *testing.T) {
	m, reg, h := newTestMetrics(t)
	m.BarProcessed("QQQ", time.Microsecond)

	srv := NewServer(":0", reg, h, zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `vpa_bars_processed_total{symbol="QQQ"} 1`) {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
