package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	ListQueries    *prometheus.CounterVec
	LeadsSearched  *prometheus.CounterVec
	LeadMutations  *prometheus.CounterVec
	BatchItems     *prometheus.CounterVec
	MessagesSent   *prometheus.CounterVec
	LeadsConverted *prometheus.CounterVec

	// Store metrics
	StoreQueryDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		ListQueries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_list_queries_total",
				Help: "Total number of lead list page loads",
			},
			[]string{"pipeline"},
		),
		LeadsSearched: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_searches_total",
				Help: "Total number of full-text lead searches",
			},
			[]string{"pipeline"},
		),
		LeadMutations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lead_mutations_total",
				Help: "Total number of single-lead mutations",
			},
			[]string{"pipeline", "kind", "outcome"}, // note, status, assign, unassign, delete
		),
		BatchItems: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_items_total",
				Help: "Total number of batch items processed",
			},
			[]string{"pipeline", "action", "outcome"}, // committed, rolledBack
		),
		MessagesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "messages_sent_total",
				Help: "Total number of outbound templated messages",
			},
			[]string{"pipeline", "outcome"},
		),
		LeadsConverted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_converted_total",
				Help: "Total number of leads marked converted",
			},
			[]string{"pipeline"},
		),

		StoreQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "store_query_duration_seconds",
				Help:    "Document store query duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation"}, // query, get, write, append_history, delete
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}

	return m
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, not the raw URL

			err := next(c)

			status := c.Response().Status
			duration := time.Since(start).Seconds()

			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, strconv.Itoa(status)).Observe(duration)

			return err
		}
	}
}

// RecordListQuery increments the list page counter
func (m *Metrics) RecordListQuery(pipeline string) {
	m.ListQueries.WithLabelValues(pipeline).Inc()
}

// RecordLeadSearch increments the search counter
func (m *Metrics) RecordLeadSearch(pipeline string) {
	m.LeadsSearched.WithLabelValues(pipeline).Inc()
}

// RecordLeadMutation increments the mutation counter
func (m *Metrics) RecordLeadMutation(pipeline, kind string, success bool) {
	m.LeadMutations.WithLabelValues(pipeline, kind, outcome(success)).Inc()
}

// RecordBatchItem increments the batch item counter
func (m *Metrics) RecordBatchItem(pipeline, action, state string) {
	m.BatchItems.WithLabelValues(pipeline, action, state).Inc()
}

// RecordMessageSent increments the outbound message counter
func (m *Metrics) RecordMessageSent(pipeline string, success bool) {
	m.MessagesSent.WithLabelValues(pipeline, outcome(success)).Inc()
}

// RecordConversion increments the converted-leads counter
func (m *Metrics) RecordConversion(pipeline string) {
	m.LeadsConverted.WithLabelValues(pipeline).Inc()
}

// RecordStoreQuery records store operation duration
func (m *Metrics) RecordStoreQuery(operation string, duration time.Duration) {
	m.StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheHit increments the cache hit counter
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments the cache miss counter
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failed"
}
