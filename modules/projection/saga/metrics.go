package saga

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	batchesTotal  *prometheus.CounterVec
	rejectedTotal *prometheus.CounterVec
	eventsTotal   prometheus.Counter
	flushLatency  prometheus.Histogram
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		batchesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "projection",
			Subsystem: "saga",
			Name:      "batches_total",
			Help:      "Total number of saga batch transitions by resulting state.",
		}, []string{"state"}),
		rejectedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "projection",
			Subsystem: "saga",
			Name:      "rejected_total",
			Help:      "Total number of event sets rejected by validation.",
		}, []string{"operation"}),
		eventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "projection",
			Subsystem: "saga",
			Name:      "events_total",
			Help:      "Total number of resolved events flushed to the event log.",
		}),
		flushLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "projection",
			Subsystem: "saga",
			Name:      "flush_latency_seconds",
			Help:      "Latency distribution for event log appends.",
			Buckets: []float64{
				0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5,
			},
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
