// Package observability holds the Prometheus metrics for the upstream feeds.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "calendar"

// Fetch outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
	OutcomeCircuitOpen = "circuit_open"
)

// Metrics holds the Prometheus counters and histograms for feed traffic.
type Metrics struct {
	FeedRequests *prometheus.CounterVec   // labels: feed={outages,schedules}, outcome
	FeedDuration *prometheus.HistogramVec // labels: feed
	FeedBytes    *prometheus.CounterVec   // labels: feed

	// Parse metrics.
	RowsParsed  *prometheus.CounterVec // labels: feed
	RowsSkipped *prometheus.CounterVec // labels: feed

	// Cache metrics, only moving when a feed cache is configured.
	CacheLookups *prometheus.CounterVec // labels: feed, result={hit,miss}
}

// NewMetrics creates and registers all feed metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FeedRequests,
		m.FeedDuration,
		m.FeedBytes,
		m.RowsParsed,
		m.RowsSkipped,
		m.CacheLookups,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as many
// as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FeedRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_requests_total",
			Help:      "Upstream feed requests by feed and outcome.",
		}, []string{"feed", "outcome"}),
		FeedDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_request_duration_seconds",
			Help:      "Upstream feed download duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"feed"}),
		FeedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_bytes_total",
			Help:      "Bytes downloaded from upstream feeds.",
		}, []string{"feed"}),
		RowsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_rows_parsed_total",
			Help:      "Feed rows decoded successfully.",
		}, []string{"feed"}),
		RowsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_rows_skipped_total",
			Help:      "Malformed feed rows that were dropped.",
		}, []string{"feed"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_cache_lookups_total",
			Help:      "Feed cache lookups by feed and result.",
		}, []string{"feed", "result"}),
	}
}

// RecordFetch observes one upstream request.
func (m *Metrics) RecordFetch(feed, outcome string, elapsed time.Duration, size int) {
	m.FeedRequests.WithLabelValues(feed, outcome).Inc()
	m.FeedDuration.WithLabelValues(feed).Observe(elapsed.Seconds())
	if size > 0 {
		m.FeedBytes.WithLabelValues(feed).Add(float64(size))
	}
}

// RecordParse observes the result of decoding a feed.
func (m *Metrics) RecordParse(feed string, rows, skipped int) {
	m.RowsParsed.WithLabelValues(feed).Add(float64(rows))
	m.RowsSkipped.WithLabelValues(feed).Add(float64(skipped))
}

// RecordCache observes a cache lookup.
func (m *Metrics) RecordCache(feed string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(feed, result).Inc()
}
