package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"OFISignal/internal/domain/models"
	"OFISignal/pkg/metrics"
)

type recordingSink struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []uint64
}

func (s *recordingSink) Emit(_ context.Context, ds []models.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("sink down")
	}
	for _, d := range ds {
		s.got = append(s.got, d.Sequence)
	}
	return nil
}

func (s *recordingSink) seqs() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.got...)
}

func decisions(n int) []models.Decision {
	out := make([]models.Decision, n)
	for i := range out {
		out[i] = models.Decision{Sequence: uint64(i + 1), Action: models.ActionBuy}
	}
	return out
}

func TestPipelinePreservesOrderAcrossRetries(t *testing.T) {
	sink := &recordingSink{failures: 2}
	p := NewDecisionPipeline(sink, metrics.Nop{},
		WithBatchSize(3),
		WithFlushInterval(5*time.Millisecond),
		WithRetry(5, time.Millisecond, 2*time.Millisecond),
	)
	p.Start(context.Background())

	for _, d := range decisions(10) {
		require.NoError(t, p.Process(context.Background(), d))
	}
	require.Eventually(t, func() bool { return len(sink.seqs()) == 10 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, p.Stop(context.Background()))

	require.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, sink.seqs())
}

func TestPipelineDropsWhenFull(t *testing.T) {
	dropped := 0
	p := NewDecisionPipeline(&recordingSink{}, metrics.Nop{},
		WithBufferSize(2),
		WithHooks(nil, func() { dropped++ }),
	)
	// not started: nothing drains the buffer
	ds := decisions(3)
	require.NoError(t, p.Process(context.Background(), ds[0]))
	require.NoError(t, p.Process(context.Background(), ds[1]))
	require.ErrorIs(t, p.Process(context.Background(), ds[2]), ErrBufferFull)
	require.Equal(t, 1, dropped)
	require.Equal(t, 2, p.Pending())
}

func TestPipelineStopFlushesBuffered(t *testing.T) {
	sink := &recordingSink{}
	p := NewDecisionPipeline(sink, metrics.Nop{}, WithFlushInterval(time.Hour), WithBatchSize(100))
	p.Start(context.Background())
	for _, d := range decisions(5) {
		require.NoError(t, p.Process(context.Background(), d))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	require.Equal(t, []uint64{1, 2, 3, 4, 5}, sink.seqs())
	require.NoError(t, p.Stop(ctx), "stop is idempotent")
}

func TestPipelineDropsBatchAfterRetries(t *testing.T) {
	sink := &recordingSink{failures: 100}
	p := NewDecisionPipeline(sink, metrics.Nop{},
		WithFlushInterval(time.Millisecond),
		WithRetry(1, time.Millisecond, time.Millisecond),
	)
	p.Start(context.Background())
	require.NoError(t, p.Process(context.Background(), decisions(1)[0]))
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.calls >= 2
	}, time.Second, time.Millisecond)
	require.NoError(t, p.Stop(context.Background()))
	require.Empty(t, sink.seqs())
}

func TestPipelineRejectsInvalidAction(t *testing.T) {
	p := NewDecisionPipeline(&recordingSink{}, metrics.Nop{})
	require.Error(t, p.Process(context.Background(), models.Decision{Action: 5}))
}
