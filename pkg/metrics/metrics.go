// Package metrics holds the Prometheus collectors of the sketch service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketchd_http_requests_total",
			Help: "HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sketchd_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	itemsAddedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sketchd_items_added_total",
			Help: "Items inserted into sketches by sketch type",
		},
		[]string{"type"},
	)

	unionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sketchd_unions_total",
			Help: "Completed sketch unions",
		},
	)

	storedBlobBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sketchd_stored_blob_bytes",
			Help:    "Size of compressed sketch blobs written to the store",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
		[]string{"type"},
	)

	compressionRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sketchd_last_compression_ratio",
			Help: "Raw to stored size ratio of the last blob written, by sketch type",
		},
		[]string{"type"},
	)

	sketchesStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sketchd_sketches",
			Help: "Number of stored sketches",
		},
	)
)

// ObserveRequest records one served request.
func ObserveRequest(route string, code int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// AddItems counts n items inserted into a sketch of the given type.
func AddItems(sketchType string, n int) {
	itemsAddedTotal.WithLabelValues(sketchType).Add(float64(n))
}

// IncUnions counts a union.
func IncUnions() {
	unionsTotal.Inc()
}

// ObserveBlob records the raw and compressed size of a blob written to the store.
func ObserveBlob(sketchType string, raw, stored int) {
	storedBlobBytes.WithLabelValues(sketchType).Observe(float64(stored))
	if stored > 0 {
		compressionRatio.WithLabelValues(sketchType).Set(float64(raw) / float64(stored))
	}
}

// SetSketches sets the stored sketch gauge.
func SetSketches(n int) {
	sketchesStored.Set(float64(n))
}
