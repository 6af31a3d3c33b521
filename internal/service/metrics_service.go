package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer, code rotation,
// the ledger and redemptions.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	tokensMinted    prometheus.Counter
	mintFailures    prometheus.Counter
	ledgerCalls     *prometheus.CounterVec
	persistFailures prometheus.Counter
	redemptions     *prometheus.CounterVec
	activeSessions  prometheus.Gauge

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "token_cache_latency_seconds",
		Help:    "Latency for attendance code cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "token_cache_hit_ratio",
		Help: "Ratio of cache hits to total code lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "token_cache_hits_total",
		Help: "Total code cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "token_cache_misses_total",
		Help: "Total code cache misses",
	})

	tokensMinted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_tokens_minted_total",
		Help: "Attendance codes minted by rotation sessions",
	})

	mintFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_token_mint_failures_total",
		Help: "Rotation ticks that failed to mint a code",
	})

	ledgerCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_calls_total",
		Help: "Ledger calls by operation and result status",
	}, []string{"operation", "status"})

	persistFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_token_persist_failures_total",
		Help: "Codes that could not be written to the database",
	})

	redemptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_redemptions_total",
		Help: "Redemption attempts by outcome",
	}, []string{"outcome"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rotation_sessions_active",
		Help: "Rotation sessions currently generating codes",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHitRatio, cacheHits, cacheMisses,
		tokensMinted, mintFailures, ledgerCalls, persistFailures, redemptions, activeSessions, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		tokensMinted:    tokensMinted,
		mintFailures:    mintFailures,
		ledgerCalls:     ledgerCalls,
		persistFailures: persistFailures,
		redemptions:     redemptions,
		activeSessions:  activeSessions,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

func (m *MetricsService) TokenMinted() {
	if m == nil {
		return
	}
	m.tokensMinted.Inc()
}

func (m *MetricsService) MintFailed() {
	if m == nil {
		return
	}
	m.mintFailures.Inc()
}

// LedgerCall counts a ledger round trip; operation is commit_batch, commit_single or redeem.
func (m *MetricsService) LedgerCall(operation, status string) {
	if m == nil {
		return
	}
	m.ledgerCalls.WithLabelValues(operation, status).Inc()
}

func (m *MetricsService) PersistFailed() {
	if m == nil {
		return
	}
	m.persistFailures.Inc()
}

func (m *MetricsService) Redemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

// SessionStarted and SessionStopped track the active rotation gauge.
func (m *MetricsService) SessionStarted() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *MetricsService) SessionStopped() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
