package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every dispatcher metric.
const Namespace = "wiredispatch"

// Metrics holds the Prometheus collectors updated by the dispatch engine and
// the transport.
type Metrics struct {
	FramesTotal       prometheus.Counter
	DecodeErrors      prometheus.Counter
	Enqueued          prometheus.Counter
	Delivered         prometheus.Counter
	PushFailures      prometheus.Counter
	CallbacksInvoked  *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
	ConnectedClients  prometheus.Gauge
	Channels          prometheus.Gauge
	RateLimitedFrames prometheus.Counter
}

// New registers the collectors with reg. A nil registerer yields collectors
// that are updated but never exported.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "inbound_frames_total",
			Help:      "Inbound frames handed to the dispatch engine",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames rejected by the decoder",
		}),
		Enqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queue_enqueued_total",
			Help:      "Packets appended to the outbound queue",
		}),
		Delivered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "queue_delivered_total",
			Help:      "Packets drained from the outbound queue",
		}),
		PushFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "push_failures_total",
			Help:      "Subscriber pushes that failed and were skipped",
		}),
		CallbacksInvoked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "callbacks_invoked_total",
			Help:      "Server-side channel callbacks invoked, by delivery path",
		}, []string{"path"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "queue_depth",
			Help:      "Packets waiting in the outbound queue",
		}),
		ConnectedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connected_clients",
			Help:      "Clients currently registered",
		}),
		Channels: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "channels",
			Help:      "Channels currently registered, reserved ones included",
		}),
		RateLimitedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rate_limited_frames_total",
			Help:      "Inbound frames dropped by the per-connection rate limit",
		}),
	}
}
