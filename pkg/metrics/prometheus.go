package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal   prometheus.Counter
	actionsTotal *prometheus.CounterVec
	ewma         prometheus.Gauge
	lastPrice    prometheus.Gauge
	latency      *prometheus.HistogramVec
	batchesTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
}

// latencyBuckets spans 1µs to ~1s; decisions are expected at the low end.
var latencyBuckets = prometheus.ExponentialBuckets(1e-6, 4, 11)

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		ticksTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ofi_ticks_total",
			Help: "Total number of ticks applied to the book",
		}),
		actionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ofi_actions_total",
				Help: "Streaming actions emitted by kind",
			},
			[]string{"action"},
		),
		ewma: f.NewGauge(prometheus.GaugeOpts{
			Name: "ofi_ewma",
			Help: "Current smoothed OFI value",
		}),
		lastPrice: f.NewGauge(prometheus.GaugeOpts{
			Name: "ofi_last_price",
			Help: "Last applied tick price",
		}),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ofi_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"operation"},
		),
		batchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ofi_batches_total",
				Help: "Batch calls by execution path and result",
			},
			[]string{"path", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ofi_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordTick() {
	r.ticksTotal.Inc()
}

func (r *Recorder) RecordAction(action string) {
	r.actionsTotal.WithLabelValues(action).Inc()
}

func (r *Recorder) RecordEWMA(v float64) {
	r.ewma.Set(v)
}

func (r *Recorder) RecordLastPrice(price float64) {
	r.lastPrice.Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordBatch counts a batch call; path is cpu, accelerated or fallback.
func (r *Recorder) RecordBatch(path, result string) {
	r.batchesTotal.WithLabelValues(path, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordTick()                   {}
func (Nop) RecordAction(string)           {}
func (Nop) RecordEWMA(float64)            {}
func (Nop) RecordLastPrice(float64)       {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordBatch(string, string)    {}
func (Nop) RecordError(string)            {}
