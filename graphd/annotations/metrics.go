package annotations

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsHandler counts events by name and records event latencies.
type MetricsHandler struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	methods *prometheus.CounterVec
}

// NewMetricsHandler creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetricsHandler(reg prometheus.Registerer) (*MetricsHandler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &MetricsHandler{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphd",
			Subsystem: "iterator",
			Name:      "events_total",
			Help:      "Iterator annotation events by name.",
		}, []string{"event"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "graphd",
			Subsystem: "iterator",
			Name:      "event_latency_seconds",
			Help:      "Latency carried by timed iterator events.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}, []string{"event"}),
		methods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graphd",
			Subsystem: "iterator",
			Name:      "strategy_total",
			Help:      "Strategies chosen by isa and linksto.",
		}, []string{"event", "method"}),
	}

	for _, c := range []prometheus.Collector{m.events, m.latency, m.methods} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register iterator metrics: %w", err)
		}
	}
	return m, nil
}

// Handle implements Handler
func (m *MetricsHandler) Handle(event Event) {
	m.events.WithLabelValues(event.Name).Inc()
	if event.Latency > 0 {
		m.latency.WithLabelValues(event.Name).Observe(event.Latency.Seconds())
	}
	if method, ok := event.Data["method"]; ok {
		m.methods.WithLabelValues(event.Name, fmt.Sprint(method)).Inc()
	}
}
