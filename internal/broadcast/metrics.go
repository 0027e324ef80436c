package broadcast

import "github.com/prometheus/client_golang/prometheus"

// Metrics are shared by every registry in the process and labelled by the
// registry name ("chats", "inboxes").
type Metrics struct {
	publishedVec   *prometheus.CounterVec
	deliveredVec   *prometheus.CounterVec
	failedVec      *prometheus.CounterVec
	subscribersVec *prometheus.GaugeVec
	latencyVec     *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		publishedVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echochat",
			Subsystem: "broadcast",
			Name:      "events_published_total",
			Help:      "Events handed to a registry, by event name.",
		}, []string{"registry", "event"}),
		deliveredVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echochat",
			Subsystem: "broadcast",
			Name:      "deliveries_total",
			Help:      "Successful per-subscriber deliveries.",
		}, []string{"registry"}),
		failedVec: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "echochat",
			Subsystem: "broadcast",
			Name:      "delivery_failures_total",
			Help:      "Deliveries that errored or timed out; the subscriber is evicted.",
		}, []string{"registry"}),
		subscribersVec: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "echochat",
			Subsystem: "broadcast",
			Name:      "subscriptions",
			Help:      "Current (key, subscriber) pairs.",
		}, []string{"registry"}),
		latencyVec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "echochat",
			Subsystem: "broadcast",
			Name:      "fanout_seconds",
			Help:      "Time to deliver one event to all of its subscribers.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"registry"}),
	}
	reg.MustRegister(m.publishedVec, m.deliveredVec, m.failedVec, m.subscribersVec, m.latencyVec)
	return m
}

// The helpers below accept a nil receiver so registries built without
// metrics (most tests) need no special casing.

func (m *Metrics) published(registry, event string) {
	if m != nil {
		m.publishedVec.WithLabelValues(registry, event).Inc()
	}
}

func (m *Metrics) delivered(registry string) {
	if m != nil {
		m.deliveredVec.WithLabelValues(registry).Inc()
	}
}

func (m *Metrics) failed(registry string) {
	if m != nil {
		m.failedVec.WithLabelValues(registry).Inc()
	}
}

func (m *Metrics) subscribers(registry string, delta float64) {
	if m != nil {
		m.subscribersVec.WithLabelValues(registry).Add(delta)
	}
}

func (m *Metrics) fanout(registry string, seconds float64) {
	if m != nil {
		m.latencyVec.WithLabelValues(registry).Observe(seconds)
	}
}
