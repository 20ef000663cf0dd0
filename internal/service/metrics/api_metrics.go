package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ofi",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of signal API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ofi",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by signal API endpoint",
		},
		[]string{"endpoint"},
	)

	PipelineDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ofi",
			Subsystem: "pipeline",
			Name:      "buffer_depth",
			Help:      "Decisions waiting to be flushed to sinks",
		},
	)

	PipelineDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ofi",
			Subsystem: "pipeline",
			Name:      "dropped_total",
			Help:      "Decisions dropped because the sink buffer was full",
		},
	)
)

// Register adds the collectors to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, PipelineDepth, PipelineDropped)
	})
}
