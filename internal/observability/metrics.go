package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgegate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "handshake",
			Name:      "attempts_total",
			Help:      "Connection handshake attempts by result.",
		},
		[]string{"result"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edgegate",
			Subsystem: "session",
			Name:      "active",
			Help:      "Live connection sessions.",
		},
	)
	pendingSlots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edgegate",
			Subsystem: "session",
			Name:      "pending_requests",
			Help:      "Outbound requests awaiting a correlated response.",
		},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "session",
			Name:      "frames_total",
			Help:      "Frames read or written by direction and kind.",
		},
		[]string{"direction", "kind"},
	)
	peerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "connector",
			Name:      "requests_total",
			Help:      "REST-shaped requests sent to the peer.",
		},
		[]string{"verb", "route", "status", "success"},
	)
	peerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgegate",
			Subsystem: "connector",
			Name:      "request_duration_seconds",
			Help:      "Peer request round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"verb", "route", "status", "success"},
	)
	activities = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgegate",
			Subsystem: "adapter",
			Name:      "activities_total",
			Help:      "Outbound activities by type and applied policy.",
		},
		[]string{"type", "policy"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			handshakes, sessionsActive, pendingSlots, frames,
			peerRequests, peerDuration, activities,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordHandshake(result string) {
	RegisterMetrics()
	handshakes.WithLabelValues(result).Inc()
}

func SessionOpened() {
	RegisterMetrics()
	sessionsActive.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	sessionsActive.Dec()
}

func AddPendingSlots(delta float64) {
	RegisterMetrics()
	pendingSlots.Add(delta)
}

func RecordFrame(direction, kind string) {
	RegisterMetrics()
	frames.WithLabelValues(direction, kind).Inc()
}

// RecordPeerRequest tracks one connector call. status is 0 when no response arrived.
func RecordPeerRequest(verb, route string, status int, duration time.Duration, success bool) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	successLabel := strconv.FormatBool(success)
	peerRequests.WithLabelValues(verb, route, statusLabel, successLabel).Inc()
	peerDuration.WithLabelValues(verb, route, statusLabel, successLabel).Observe(duration.Seconds())
}

func RecordActivity(activityType, policy string) {
	RegisterMetrics()
	activities.WithLabelValues(activityType, policy).Inc()
}
