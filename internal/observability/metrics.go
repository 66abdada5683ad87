package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// alert relay.
type Metrics struct {
	ProductsReceived *prometheus.CounterVec // labels: source={push,pull}
	ParseFailures    *prometheus.CounterVec // labels: reason
	StoreOps         *prometheus.CounterVec // labels: result={inserted,updated,removed,duplicate,discarded}
	ActiveAlerts     prometheus.Gauge

	// Fan-out metrics.
	FramesSent              *prometheus.CounterVec // labels: type
	Subscribers             prometheus.Gauge
	SlowConsumerDisconnects prometheus.Counter
	BroadcastQueueDepth     prometheus.Histogram

	// Source metrics.
	PushReconnects prometheus.Counter
	PullPolls      *prometheus.CounterVec // labels: outcome={success,error}
	PollDuration   prometheus.Histogram
}

// NewMetrics creates and registers all relay metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ProductsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "products_received_total",
			Help:      "Raw products received by source.",
		}, []string{"source"}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "parse_failures_total",
			Help:      "Products rejected by the parser, by reason.",
		}, []string{"reason"}),
		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "store_operations_total",
			Help:      "Store upsert outcomes.",
		}, []string{"result"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "alert_relay",
			Name:      "active_alerts",
			Help:      "Alerts currently held in the active set.",
		}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "frames_sent_total",
			Help:      "WebSocket frames delivered to subscribers, by frame type.",
		}, []string{"type"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "alert_relay",
			Name:      "subscribers",
			Help:      "Connected WebSocket subscribers.",
		}),
		SlowConsumerDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "slow_consumer_disconnects_total",
			Help:      "Subscribers dropped because their send queue filled.",
		}),
		BroadcastQueueDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alert_relay",
			Name:      "broadcast_queue_depth",
			Help:      "Per-subscriber queue depth sampled at enqueue time.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),
		PushReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "push_reconnects_total",
			Help:      "Reconnection attempts made by the push source.",
		}),
		PullPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "alert_relay",
			Name:      "pull_polls_total",
			Help:      "Pull source poll cycles by outcome.",
		}, []string{"outcome"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "alert_relay",
			Name:      "poll_duration_seconds",
			Help:      "Duration of a pull source poll cycle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	prometheus.MustRegister(
		m.ProductsReceived,
		m.ParseFailures,
		m.StoreOps,
		m.ActiveAlerts,
		m.FramesSent,
		m.Subscribers,
		m.SlowConsumerDisconnects,
		m.BroadcastQueueDepth,
		m.PushReconnects,
		m.PullPolls,
		m.PollDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ProductsReceived:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "alert_relay", Name: "products_received_total"}, []string{"source"}),
		ParseFailures:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "alert_relay", Name: "parse_failures_total"}, []string{"reason"}),
		StoreOps:                prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "alert_relay", Name: "store_operations_total"}, []string{"result"}),
		ActiveAlerts:            prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "alert_relay", Name: "active_alerts"}),
		FramesSent:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "alert_relay", Name: "frames_sent_total"}, []string{"type"}),
		Subscribers:             prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "alert_relay", Name: "subscribers"}),
		SlowConsumerDisconnects: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "alert_relay", Name: "slow_consumer_disconnects_total"}),
		BroadcastQueueDepth:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "alert_relay", Name: "broadcast_queue_depth"}),
		PushReconnects:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "alert_relay", Name: "push_reconnects_total"}),
		PullPolls:               prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "alert_relay", Name: "pull_polls_total"}, []string{"outcome"}),
		PollDuration:            prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "alert_relay", Name: "poll_duration_seconds"}),
	}
}
