package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fecstl_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// StoreQueryLatency records data access latency by backend, operation and table.
	StoreQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fecstl_store_query_latency_seconds",
		Help:    "Data access latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation", "table"})

	// StoreBackend is 1 for the storage backend selected at startup.
	StoreBackend = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fecstl_store_backend",
		Help: "Storage backend selected at startup",
	}, []string{"backend"})

	// UploadsTotal counts upload attempts by kind (model, photo) and result.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fecstl_uploads_total",
		Help: "Total number of uploaded files by kind and result",
	}, []string{"kind", "result"})

	// UploadBytes counts bytes written to file storage.
	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fecstl_upload_bytes_total",
		Help: "Total bytes written to file storage",
	})

	// DownloadsTotal counts served model downloads.
	DownloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fecstl_downloads_total",
		Help: "Total number of model file downloads",
	})

	// ActivityConnections is the gauge of open activity feed connections.
	ActivityConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fecstl_activity_connections",
		Help: "Number of open activity feed WebSocket connections",
	})

	// ActivityEventsTotal counts activity events by type.
	ActivityEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fecstl_activity_events_total",
		Help: "Total activity feed events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fecstl_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(backend, operation, table string) func() {
	start := time.Now()
	return func() {
		StoreQueryLatency.WithLabelValues(backend, operation, table).Observe(time.Since(start).Seconds())
	}
}

// MarkBackend records which storage backend the process runs on.
func MarkBackend(backend string) {
	StoreBackend.Reset()
	StoreBackend.WithLabelValues(backend).Set(1)
}
