package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// API
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests."},
		[]string{"handler", "method", "code"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms..~10s
		},
		[]string{"handler", "method"},
	)

	// Ingestion
	IngestRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ingest_records_total", Help: "Normalized records applied to the store."},
		[]string{"kind", "result"}, // message: inserted | duplicate | error; status: matched | unmatched | error
	)
	StoreDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "store_degraded_total", Help: "Store operations served by a fallback."},
		[]string{"op"},
	)

	// Live fan-out
	LiveEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "live_events_published_total", Help: "Live events published."},
		[]string{"type"},
	)
	LiveSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "live_subscribers", Help: "Connected live clients."},
		[]string{"surface"}, // sse | ws
	)
)

var registerOnce sync.Once

// MustRegister registers the relay collectors on the default registry, which
// already carries the Go and process collectors. Repeated calls are no-ops.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests, HTTPDuration,
			IngestRecords, StoreDegraded,
			LiveEventsPublished, LiveSubscribers,
		)
	})
}
