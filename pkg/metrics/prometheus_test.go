package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordTick()
	r.RecordTick()
	r.RecordAction("BUY")
	r.RecordEWMA(41.5)
	r.RecordLastPrice(100.25)
	r.RecordBatch("accelerated", "ok")
	r.RecordBatch("fallback", "ok")
	r.RecordError("parse")
	r.RecordLatency("decision", 2e-6)

	require.Equal(t, 2.0, testutil.ToFloat64(r.ticksTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(r.actionsTotal.WithLabelValues("BUY")))
	require.Equal(t, 41.5, testutil.ToFloat64(r.ewma))
	require.Equal(t, 100.25, testutil.ToFloat64(r.lastPrice))
	require.Equal(t, 1.0, testutil.ToFloat64(r.batchesTotal.WithLabelValues("fallback", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("parse")))
	require.Equal(t, 1, testutil.CollectAndCount(r.latency))
}

func TestRecordersOnSeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		NewWithRegistry(prometheus.NewRegistry())
		NewWithRegistry(prometheus.NewRegistry())
	})
}
