package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics, exported on /metrics.
var (
	AppendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_appends_total",
		Help: "Messages durably appended across all groups.",
	})
	TombstonesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_tombstones_total",
		Help: "Messages tombstoned.",
	})
	AppendRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_append_retries_total",
		Help: "Durable write attempts retried before success or Unavailable.",
	})
	AppendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chatsync_append_seconds",
		Help:    "Latency of durable append, including seq assignment.",
		Buckets: prometheus.DefBuckets,
	})

	PublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_fanout_published_total",
		Help: "Events handed to the fan-out dispatcher.",
	})
	DeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_fanout_delivered_total",
		Help: "Per-connection deliveries enqueued.",
	})
	DroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_fanout_dropped_total",
		Help: "Per-connection deliveries dropped (slow or gone subscriber).",
	})

	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_subscriptions",
		Help: "Live (connection, group) subscriptions.",
	})
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_connections",
		Help: "Live websocket connections.",
	})
)
