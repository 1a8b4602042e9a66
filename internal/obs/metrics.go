package obs

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

// Metrics tracks application metrics using atomic counters.
type Metrics struct {
	requests        atomic.Int64
	cacheHits       atomic.Int64
	rateLimited     atomic.Int64
	providerErrors  atomic.Int64
	normalizedItems atomic.Int64
	logger          *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		logger: logger,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requests.Add(1)
}

// IncCacheHits increments the cache hits counter.
func (m *Metrics) IncCacheHits() {
	m.cacheHits.Add(1)
}

// IncRateLimited counts requests rejected by the rate limiter.
func (m *Metrics) IncRateLimited() {
	m.rateLimited.Add(1)
}

// IncProviderErrors increments the provider errors counter.
func (m *Metrics) IncProviderErrors() {
	m.providerErrors.Add(1)
}

// AddNormalizedItems adds n to the count of items produced by the normalizer.
func (m *Metrics) AddNormalizedItems(n int) {
	m.normalizedItems.Add(int64(n))
}

// Snapshot returns current metric values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:        m.requests.Load(),
		CacheHits:       m.cacheHits.Load(),
		RateLimited:     m.rateLimited.Load(),
		ProviderErrors:  m.providerErrors.Load(),
		NormalizedItems: m.normalizedItems.Load(),
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	Requests        int64
	CacheHits       int64
	RateLimited     int64
	ProviderErrors  int64
	NormalizedItems int64
}

// HealthHandler returns a handler for /healthz requests.
func HealthHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write health response", "error", err)
		}
	}
}

type counter struct {
	name  string
	help  string
	value int64
}

// MetricsHandler returns a handler for /metrics requests in Prometheus format.
func (m *Metrics) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := m.Snapshot()
		counters := []counter{
			{"luxsearch_requests_total", "Total number of search requests", s.Requests},
			{"luxsearch_cache_hits_total", "Total number of cache hits", s.CacheHits},
			{"luxsearch_rate_limited_total", "Total number of rate limited requests", s.RateLimited},
			{"luxsearch_provider_errors_total", "Total number of provider errors", s.ProviderErrors},
			{"luxsearch_normalized_items_total", "Total number of normalized items returned by providers", s.NormalizedItems},
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)

		for _, c := range counters {
			if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.value); err != nil {
				m.logger.Error("failed to write metrics", "error", err)
				return
			}
		}
	}
}
