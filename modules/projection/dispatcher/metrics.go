package dispatcher

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
)

type metrics struct {
	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		dispatchTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "projection",
			Subsystem: "dispatcher",
			Name:      "events_total",
			Help:      "Total number of inbound events dispatched by type and result.",
		}, []string{"event_type", "result"}),
		dispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "projection",
			Subsystem: "dispatcher",
			Name:      "latency_seconds",
			Help:      "Latency distribution for handling one inbound event.",
			Buckets: []float64{
				0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"event_type", "result"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func (m *metrics) record(t events.Type, result string, latency time.Duration) {
	m.dispatchTotal.WithLabelValues(string(t), result).Inc()
	m.dispatchLatency.WithLabelValues(string(t), result).Observe(latency.Seconds())
}
