package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"OFISignal/internal/domain/models"
	"OFISignal/pkg/metrics"
)

// fakeStream serves one batch of ticks per Read; a batch ending in failErr
// reports that error after its ticks.
type fakeStream struct {
	mu         sync.Mutex
	batches    [][]models.Tick
	failErr    error
	reconnects atomic.Int32
	connected  atomic.Bool
}

func (s *fakeStream) Connect(context.Context) error { s.connected.Store(true); return nil }

func (s *fakeStream) Read(ctx context.Context) (<-chan models.Tick, <-chan error) {
	ticks := make(chan models.Tick)
	errs := make(chan error, 1)

	s.mu.Lock()
	var batch []models.Tick
	last := len(s.batches) <= 1
	if len(s.batches) > 0 {
		batch = s.batches[0]
		s.batches = s.batches[1:]
	}
	s.mu.Unlock()

	go func() {
		defer close(errs)
		defer close(ticks)
		for _, t := range batch {
			select {
			case ticks <- t:
			case <-ctx.Done():
				return
			}
		}
		if !last {
			errs <- s.failErr
			return
		}
		<-ctx.Done()
	}()
	return ticks, errs
}

func (s *fakeStream) Reconnect(context.Context) error { s.reconnects.Add(1); return nil }
func (s *fakeStream) Close() error                    { s.connected.Store(false); return nil }
func (s *fakeStream) IsConnected() bool               { return s.connected.Load() }

type fakePipe struct {
	mu      sync.Mutex
	got     []models.Decision
	started bool
	stopped bool
}

func (p *fakePipe) Start(context.Context) { p.mu.Lock(); p.started = true; p.mu.Unlock() }
func (p *fakePipe) Stop(context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	return nil
}

func (p *fakePipe) Process(_ context.Context, d models.Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, d)
	return nil
}

func (p *fakePipe) decisions() []models.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Decision(nil), p.got...)
}

type memSnapshots struct {
	mu   sync.Mutex
	last models.Snapshot
	n    int
}

func (m *memSnapshots) Save(_ context.Context, s models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = s
	m.n++
	return nil
}

func (m *memSnapshots) Latest(context.Context) (models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last, nil
}

func TestCollectorForwardsSignalsInOrderAcrossReconnect(t *testing.T) {
	stream := &fakeStream{
		batches: [][]models.Tick{
			{tick(1, 100, 10), tick(2, 101, 300)},
			{tick(3, 100, 1000), tick(4, 101, 1000)},
		},
		failErr: errors.New("socket reset"),
	}
	pipe := &fakePipe{}
	snaps := &memSnapshots{}
	c := NewTickCollector(stream, newProcessor(t), metrics.Nop{},
		WithPipeline(pipe, false),
		WithSnapshots(snaps, 5*time.Millisecond),
		WithReconnectDelay(time.Millisecond),
	)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(pipe.decisions()) == 3 }, 2*time.Second, 5*time.Millisecond)

	ds := pipe.decisions()
	require.Equal(t, []uint64{2, 3, 4}, []uint64{ds[0].Sequence, ds[1].Sequence, ds[2].Sequence})
	require.Equal(t, models.ActionBuy, ds[0].Action)
	require.Equal(t, models.ActionSell, ds[1].Action)
	require.Equal(t, int32(1), stream.reconnects.Load())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))
	<-c.Done()

	require.True(t, pipe.started)
	require.True(t, pipe.stopped)
	require.False(t, stream.IsConnected())
	latest, _ := snaps.Latest(ctx)
	require.Equal(t, uint64(4), latest.Sequence)
}

func TestCollectorSkipsHoldUnlessConfigured(t *testing.T) {
	for _, emitHold := range []bool{false, true} {
		stream := &fakeStream{batches: [][]models.Tick{{tick(1, 100, 1), tick(2, 100, 1), tick(3, 100, 1)}}}
		pipe := &fakePipe{}
		c := NewTickCollector(stream, newProcessor(t), metrics.Nop{}, WithPipeline(pipe, emitHold))
		require.NoError(t, c.Start(context.Background()))

		want := 0
		if emitHold {
			want = 2
			require.Eventually(t, func() bool { return len(pipe.decisions()) == want }, 2*time.Second, 5*time.Millisecond)
		} else {
			require.Eventually(t, func() bool { return c.proc.Stats().Report().Total == 2 }, 2*time.Second, 5*time.Millisecond)
		}
		require.NoError(t, c.Shutdown(context.Background()))
		require.Len(t, pipe.decisions(), want)
	}
}
