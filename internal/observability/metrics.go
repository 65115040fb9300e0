package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	respFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redclient",
			Subsystem: "resp",
			Name:      "frames_total",
			Help:      "RESP frames sent or received.",
		},
		[]string{"direction", "type"},
	)
	transportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redclient",
			Subsystem: "transport",
			Name:      "errors_total",
			Help:      "Connection failures by kind.",
		},
		[]string{"kind"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redclient",
			Subsystem: "resp",
			Name:      "commands_total",
			Help:      "Commands written to the server.",
		},
		[]string{"command"},
	)
	pushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redclient",
			Subsystem: "resp",
			Name:      "pushes_total",
			Help:      "Server pushes dispatched by the subscriber loop.",
		},
		[]string{"kind"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redclient",
			Subsystem: "pubsub",
			Name:      "deliveries_total",
			Help:      "Events delivered to consumer queues.",
		},
		[]string{"kind"},
	)
	sessionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redclient",
			Subsystem: "pubsub",
			Name:      "session_failures_total",
			Help:      "Subscriber sessions terminated by an error.",
		},
		[]string{"reason"},
	)
	channels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "redclient",
			Subsystem: "pubsub",
			Name:      "channels",
			Help:      "Channels tracked by subscribers, by state.",
		},
		[]string{"state"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "redclient",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "redclient",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			respFrames,
			transportErrors,
			commands,
			pushes,
			deliveries,
			sessionFailures,
			channels,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordFrame(direction, valueType string) {
	RegisterMetrics()
	respFrames.WithLabelValues(direction, valueType).Inc()
}

func RecordTransportError(kind string) {
	RegisterMetrics()
	transportErrors.WithLabelValues(kind).Inc()
}

func RecordCommand(command string) {
	RegisterMetrics()
	commands.WithLabelValues(command).Inc()
}

func RecordPush(kind string) {
	RegisterMetrics()
	pushes.WithLabelValues(kind).Inc()
}

func RecordDelivery(kind string) {
	RegisterMetrics()
	deliveries.WithLabelValues(kind).Inc()
}

func RecordSessionFailure(reason string) {
	RegisterMetrics()
	sessionFailures.WithLabelValues(reason).Inc()
}

// AddChannels moves the per-state channel gauge by delta.
func AddChannels(state string, delta int) {
	RegisterMetrics()
	channels.WithLabelValues(state).Add(float64(delta))
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
