package predictor

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"

	"OFISignal/internal/domain/models"
	"OFISignal/internal/services/accel"
	"OFISignal/pkg/logger"
)

const (
	H = models.ActionHold
	B = models.ActionBuy
	S = models.ActionSell
)

func newCPU(t *testing.T, alpha, thr float64) *Predictor {
	t.Helper()
	p, err := New(alpha, thr)
	require.NoError(t, err)
	return p
}

func newPool(t *testing.T, alpha, thr float64, opts ...Option) *Predictor {
	t.Helper()
	opts = append([]Option{WithProvider(accel.PoolProvider{Workers: 4})}, opts...)
	p, err := New(alpha, thr, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.Equal(t, models.ModeAccelerated, p.SetMode(models.ModeAccelerated))
	return p
}

func TestNewRejectsBadParameters(t *testing.T) {
	for _, tc := range []struct {
		alpha, thr float64
	}{
		{0, 40}, {-0.1, 40}, {1.01, 40}, {math.NaN(), 40}, {0.15, -1}, {0.15, math.NaN()},
	} {
		if _, err := New(tc.alpha, tc.thr); err == nil {
			t.Fatalf("New(%v, %v) succeeded", tc.alpha, tc.thr)
		}
	}
	_, err := New(1, 0)
	require.NoError(t, err)
}

func TestProcessSampleSequence(t *testing.T) {
	p := newCPU(t, 0.15, 40)

	inputs := []float64{0, 300, 0, 0, 0, 0}
	wantEWMA := []float64{0, 45, 38.25, 32.5125, 27.635625, 23.49028125}
	wantAct := []models.Action{H, B, H, H, H, H}

	for i, x := range inputs {
		got := p.ProcessSample(x)
		if got != wantAct[i] {
			t.Fatalf("sample %d: action %v, want %v", i, got, wantAct[i])
		}
		require.InDelta(t, wantEWMA[i], p.EWMA(), 1e-9, "sample %d", i)
	}
}

func TestProcessSampleSell(t *testing.T) {
	p := newCPU(t, 0.5, 10)
	require.Equal(t, S, p.ProcessSample(-30))
	require.Equal(t, -15.0, p.EWMA())
}

func TestThresholdIsStrict(t *testing.T) {
	// alpha=0.5 from zero: ewma = x/2, exactly representable.
	p := newCPU(t, 0.5, 40)
	require.Equal(t, H, p.ProcessSample(80))
	require.Equal(t, 40.0, p.EWMA())

	p = newCPU(t, 0.5, 40)
	require.Equal(t, H, p.ProcessSample(-80))
	require.Equal(t, -40.0, p.EWMA())

	got, err := newCPU(t, 0.5, 40).ProcessBatch([]float64{80, 0, -80, 0}, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []models.Action{H, H, H, H}, got)
}

func TestNaNPoisonsStream(t *testing.T) {
	p := newCPU(t, 0.5, 1)
	p.ProcessSample(math.NaN())
	require.Equal(t, H, p.ProcessSample(100))
	require.True(t, math.IsNaN(p.EWMA()))
}

func TestBatchMatchesFreshStreamingPredictors(t *testing.T) {
	data := []float64{300, -20, 5, -400, 10, 60}
	p := newCPU(t, 0.15, 40)

	got, err := p.ProcessBatch(data, 2, 3)
	require.NoError(t, err)
	require.Len(t, got, 6)

	for s := 0; s < 2; s++ {
		fresh := newCPU(t, 0.15, 40)
		for i := 0; i < 3; i++ {
			want := fresh.ProcessSample(data[s*3+i])
			if got[s*3+i] != want {
				t.Fatalf("seq %d elem %d: batch %v, streaming %v", s, i, got[s*3+i], want)
			}
		}
	}
	// batch does not touch the streaming state
	require.Equal(t, 0.0, p.EWMA())
}

func TestBatchShapeErrors(t *testing.T) {
	p := newCPU(t, 0.15, 40)
	for _, tc := range []struct {
		name   string
		data   []float64
		n, len int
	}{
		{"zero sequences", []float64{1}, 0, 1},
		{"zero length", []float64{1}, 1, 0},
		{"negative", []float64{1}, -1, -1},
		{"short", []float64{1, 2, 3}, 2, 2},
		{"long", []float64{1, 2, 3, 4, 5}, 2, 2},
		{"overflow", []float64{1}, math.MaxInt/2 + 1, 4},
	} {
		t.Run(tc.name, func(t *testing.T) {
			out, err := p.ProcessBatch(tc.data, tc.n, tc.len)
			require.ErrorIs(t, err, ErrInvalidBatch)
			require.Nil(t, out)
		})
	}
}

func TestAcceleratedMatchesCPU(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	const n, l = 64, 129
	data := make([]float64, n*l)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * 1000
	}

	cpu := newCPU(t, 0.15, 40)
	dev := newPool(t, 0.15, 40)

	want, err := cpu.ProcessBatch(data, n, l)
	require.NoError(t, err)
	got, path, err := dev.RunBatch(data, n, l)
	require.NoError(t, err)
	require.Equal(t, PathAccelerated, path)
	require.Equal(t, want, got)
}

func TestAcceleratedMatchesCPUProperty(t *testing.T) {
	cpu := newCPU(t, 0.2, 45)
	dev := newPool(t, 0.2, 45)

	f := func(raw []float64, n uint8) bool {
		numSeq := int(n%7) + 2
		if len(raw) < numSeq*2 {
			return true
		}
		seqLen := len(raw) / numSeq
		data := raw[:numSeq*seqLen]
		want, err := cpu.ProcessBatch(data, numSeq, seqLen)
		if err != nil {
			return false
		}
		got, err := dev.ProcessBatch(data, numSeq, seqLen)
		if err != nil || len(got) != len(want) {
			return false
		}
		for i := range want {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 200}); err != nil {
		t.Fatal(err)
	}
}

func TestSetModeWithoutDeviceIsSticky(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(0.15, 40, WithLogger(logger.NewWithWriter(&buf, "debug")))
	require.NoError(t, err)

	require.Equal(t, models.ModeCPU, p.SetMode(models.ModeAccelerated))
	require.Equal(t, models.ModeCPU, p.Mode())
	require.False(t, p.AcceleratorAvailable())
	require.Contains(t, buf.String(), "staying in CPU mode")

	got, path, err := p.RunBatch([]float64{0, 300, 0, 0}, 2, 2)
	require.NoError(t, err)
	require.Equal(t, PathCPU, path)
	require.Equal(t, []models.Action{H, B, H, H}, got)
}

func TestWithModeAcceleratedCoercedWithoutDevice(t *testing.T) {
	p, err := New(0.15, 40, WithMode(models.ModeAccelerated))
	require.NoError(t, err)
	require.Equal(t, models.ModeCPU, p.Mode())
}

func TestDeviceOpenedOnceAndReused(t *testing.T) {
	var opens atomic.Int32
	provider := accel.ProviderFunc(func() (accel.Device, error) {
		opens.Add(1)
		return accel.PoolProvider{Workers: 2}.Open()
	})
	p, err := New(0.15, 40, WithProvider(provider))
	require.NoError(t, err)
	require.False(t, p.AcceleratorAvailable())
	require.EqualValues(t, 0, opens.Load())

	require.Equal(t, models.ModeAccelerated, p.SetMode(models.ModeAccelerated))
	require.True(t, p.AcceleratorAvailable())
	for i := 0; i < 3; i++ {
		_, err := p.ProcessBatch([]float64{1, 2, 3, 4}, 2, 2)
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, opens.Load())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.False(t, p.AcceleratorAvailable())
}

func TestPerCallFallbackKeepsAcceleratedMode(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(0.15, 40,
		WithProvider(accel.PoolProvider{Workers: 2}),
		WithLogger(logger.NewWithWriter(&buf, "debug")),
	)
	require.NoError(t, err)
	require.Equal(t, models.ModeAccelerated, p.SetMode(models.ModeAccelerated))
	require.NoError(t, p.Close())

	got, path, err := p.RunBatch([]float64{0, 300, 0, 0}, 2, 2)
	require.NoError(t, err)
	require.Equal(t, PathFallback, path)
	require.Equal(t, []models.Action{H, B, H, H}, got)
	require.Equal(t, models.ModeAccelerated, p.Mode())
	require.Contains(t, buf.String(), "falling back to CPU batch")
}

func TestCloseWithoutInitIsNoop(t *testing.T) {
	p := newCPU(t, 0.15, 40)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

// faultyDevice wraps a working device and fails one step on demand.
type faultyDevice struct {
	accel.Device
	failAlloc bool
	failBuild bool
}

var errInjected = errors.New("injected device fault")

func (d *faultyDevice) Alloc(kind accel.BufferKind, n int) (*accel.Buffer, error) {
	if d.failAlloc {
		return nil, errInjected
	}
	return d.Device.Alloc(kind, n)
}

func (d *faultyDevice) Build(name string, fn accel.KernelFunc) (accel.Program, error) {
	if d.failBuild {
		return nil, errInjected
	}
	return d.Device.Build(name, fn)
}

func TestDeviceFailureIsReportedNotMasked(t *testing.T) {
	for _, tc := range []struct {
		name string
		dev  faultyDevice
	}{
		{"alloc", faultyDevice{failAlloc: true}},
		{"build", faultyDevice{failBuild: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dev := tc.dev
			provider := accel.ProviderFunc(func() (accel.Device, error) {
				inner, err := accel.PoolProvider{Workers: 2}.Open()
				dev.Device = inner
				return &dev, err
			})
			p, err := New(0.15, 40, WithProvider(provider), WithMode(models.ModeAccelerated))
			require.NoError(t, err)
			defer p.Close()
			require.Equal(t, models.ModeAccelerated, p.Mode())

			out, path, err := p.RunBatch([]float64{1, 2, 3, 4}, 2, 2)
			require.ErrorIs(t, err, ErrAcceleratorFailure)
			require.ErrorIs(t, err, errInjected)
			require.Equal(t, PathAccelerated, path)
			require.Nil(t, out)
		})
	}
}

func TestOutOfDeviceMemoryIsAcceleratorFailure(t *testing.T) {
	p, err := New(0.15, 40,
		WithProvider(accel.PoolProvider{Workers: 1, MemoryBytes: 16}),
		WithMode(models.ModeAccelerated),
	)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.ProcessBatch(make([]float64, 8), 2, 4)
	require.ErrorIs(t, err, ErrAcceleratorFailure)
	require.ErrorIs(t, err, accel.ErrOutOfResources)
}

func TestConcurrentReadsDuringUpdates(t *testing.T) {
	p := newCPU(t, 0.15, 40)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = p.EWMA()
			}
		}
	}()

	ref := newCPU(t, 0.15, 40)
	for i := 0; i < 10000; i++ {
		x := float64(i%17) - 8
		if p.ProcessSample(x) != ref.ProcessSample(x) {
			t.Fatalf("sample %d diverged", i)
		}
	}
	close(stop)
	wg.Wait()
	require.Equal(t, ref.EWMA(), p.EWMA())
}

func TestStrategiesAgree(t *testing.T) {
	acc := newAcceleratedStrategy(accel.PoolProvider{Workers: 2}, logger.Nop())
	require.NoError(t, acc.ensure())
	defer acc.close()

	data := []float64{0, 300, 0, 0, -400, 0}
	want := []models.Action{H, B, H, H, S, S}
	for name, s := range map[string]strategy{"cpu": cpuStrategy{}, "accelerated": acc} {
		got, err := s.run(data, 2, 3, 0.15, 40)
		require.NoError(t, err, name)
		require.Equal(t, want, got, name)
	}
}
