package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Broadcast("trade_update")
	m.SendDropped()
	m.SetRegistry(1, 1)
	m.ObserveQuote(time.Millisecond, "transport")
	m.LivePnL(3)
	m.ObserveHTTP("/x", 200, time.Millisecond)
	m.BreakerChanged("quotes", 1)
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Broadcast("trade_update")
	m.Broadcast("trade_update")
	m.SendDropped()
	m.SetRegistry(3, 2)
	m.ObserveQuote(10*time.Millisecond, "upstream")
	m.BreakerChanged("quotes", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BroadcastsTotal.WithLabelValues("trade_update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendDropsTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveConnections))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveTopics))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuoteFailures.WithLabelValues("upstream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerTrips.WithLabelValues("quotes")))
}

func TestHealthStatus_Snapshot(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "h.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := NewHealthStatus("mock", false)
	assert.Equal(t, "degraded", h.Snapshot().Status, "sqlite not probed yet")

	h.Probe(context.Background(), nil, db)
	h.RecordQuote(nil)

	rep := h.Snapshot()
	assert.Equal(t, "healthy", rep.Status)
	assert.True(t, rep.SQLiteOK)
	assert.NotEmpty(t, rep.LastQuoteOK)

	h.RecordQuote(errors.New("upstream 500"))
	assert.Equal(t, "upstream 500", h.Snapshot().LastQuoteError)
}

func TestHealthStatus_RedisOnlyCountsWhenEnabled(t *testing.T) {
	h := NewHealthStatus("live", true)
	h.SQLiteOK = true
	assert.Equal(t, "degraded", h.Snapshot().Status)

	h.RedisConnected = true
	assert.Equal(t, "healthy", h.Snapshot().Status)
}

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus("mock", false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	h.SQLiteOK = true
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var rep Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "mock", rep.QuoteSource)
}
