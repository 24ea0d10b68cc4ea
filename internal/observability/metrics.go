package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerificationsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idv",
		Name:      "verifications_processed_total",
		Help:      "Total number of verification runs by terminal status",
	}, []string{"status"})

	FailureReasons = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idv",
		Name:      "failure_reasons_total",
		Help:      "Total failure reasons recorded, by kind and blocking class",
	}, []string{"kind", "blocking"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "idv",
		Name:      "stage_duration_seconds",
		Help:      "Duration of verification pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	BarcodeAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "idv",
		Name:      "barcode_decode_attempts",
		Help:      "Decode attempts spent per barcode search",
		Buckets:   prometheus.LinearBuckets(0, 20, 12),
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "idv",
		Name:      "queue_depth",
		Help:      "Number of pending verification tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "idv",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "idv",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
