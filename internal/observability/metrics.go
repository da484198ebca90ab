package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fo",
		Name:      "batches_applied_total",
		Help:      "Total number of detection batches applied to a tracker",
	}, []string{"stream_id"})

	// BatchesDropped counts batches that contributed no updates.
	// reason: superseded, out_of_order, stale_facing, reset, geometry, stopped,
	// decode, unknown_stream.
	BatchesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fo",
		Name:      "batches_dropped_total",
		Help:      "Total number of detection batches discarded before being applied",
	}, []string{"stream_id", "reason"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fo",
		Name:      "faces_detected_total",
		Help:      "Total number of normalized faces applied",
	}, []string{"stream_id"})

	TrackedFaces = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fo",
		Name:      "tracked_faces",
		Help:      "Number of faces currently rendered, including those fading out",
	}, []string{"stream_id"})

	FacesEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fo",
		Name:      "faces_evicted_total",
		Help:      "Total number of faces removed after fading out",
	}, []string{"stream_id"})

	SourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fo",
		Name:      "detection_source_errors_total",
		Help:      "Total number of failed detector invocations reported by the source",
	}, []string{"stream_id"})

	CameraSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fo",
		Name:      "camera_switches_total",
		Help:      "Total number of camera facing changes",
	}, []string{"stream_id"})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fo",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one smoothing tick",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 12),
	})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fo",
		Name:      "active_streams",
		Help:      "Number of currently running overlay sessions",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fo",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fo",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
