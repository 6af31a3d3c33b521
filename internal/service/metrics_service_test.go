package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.TokenMinted()
	m.TokenMinted()
	m.LedgerCall("commit_batch", "committed")
	m.Redemption("recorded")
	m.SessionStarted()
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordCacheOperation(false, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tokensMinted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerCalls.WithLabelValues("commit_batch", "committed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.redemptions.WithLabelValues("recorded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.cacheHitRatio))

	m.SessionStopped()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeSessions))
}

func TestMetricsServiceNilIsSafe(t *testing.T) {
	var m *MetricsService
	m.TokenMinted()
	m.Redemption("recorded")
	m.ObserveHTTPRequest("GET", "/health", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
