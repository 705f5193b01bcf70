package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ccanvas_connections_total",
			Help: "Total number of live connections in the component tree",
		},
	)

	PoolItemsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ccanvas_pool_items_total",
			Help: "Total number of pool items currently holding a value or a watcher",
		},
	)

	SubscribersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ccanvas_subscribers_total",
			Help: "Total number of subscribers per channel kind",
		},
		[]string{"channel_kind"},
	)

	EventsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccanvas_events_dispatched_total",
			Help: "Total number of events successfully delivered to a capturing subscriber",
		},
		[]string{"event_kind"},
	)

	EventsUndeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccanvas_events_undelivered_total",
			Help: "Total number of events no subscriber captured",
		},
		[]string{"event_kind"},
	)

	EventsSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccanvas_events_skipped_total",
			Help: "Total number of subscriber offers skipped by an active suppressor",
		},
		[]string{"event_kind"},
	)

	DispatchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ccanvas_dispatch_latency_seconds",
			Help:    "Time from event arrival to dispatch outcome (capture or undelivered)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_kind"},
	)

	HandshakesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ccanvas_handshakes_total",
			Help: "Total number of connection handshakes by outcome",
		},
		[]string{"outcome"}, // approved, rejected_id, rejected_parent
	)

	SpawnedProcessesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ccanvas_spawned_processes_total",
			Help: "Total number of child processes spawned",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		PoolItemsTotal,
		SubscribersTotal,
		EventsDispatchedTotal,
		EventsUndeliveredTotal,
		EventsSkippedTotal,
		DispatchLatency,
		HandshakesTotal,
		SpawnedProcessesTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
