package predictor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"OFISignal/internal/domain/models"
	"OFISignal/internal/services/accel"
	"OFISignal/pkg/logger"
)

const ewmaKernelName = "ewma_batch"

// strategy executes a validated batch.
type strategy interface {
	run(data []float64, numSequences, seqLen int, alpha, threshold float64) ([]models.Action, error)
}

var (
	_ strategy = cpuStrategy{}
	_ strategy = (*acceleratedStrategy)(nil)
)

type cpuStrategy struct{}

func (cpuStrategy) run(data []float64, numSequences, seqLen int, alpha, threshold float64) ([]models.Action, error) {
	out := make([]models.Action, len(data))
	for s := 0; s < numSequences; s++ {
		lo, hi := s*seqLen, (s+1)*seqLen
		scan(data[lo:hi], out[lo:hi], alpha, threshold)
	}
	return out, nil
}

// ewmaKernel is one work-item: a full sequence scan.
// Args: Buffers{in, out}, Float64{alpha, threshold}, Ints{seqLen}.
func ewmaKernel(gid int, args accel.Args) error {
	seqLen := args.Ints[0]
	lo, hi := gid*seqLen, (gid+1)*seqLen
	in := args.Buffers[0].Float64s()
	out := args.Buffers[1].Int8s()
	if hi > len(in) || hi > len(out) {
		return fmt.Errorf("sequence %d out of range", gid)
	}
	scan(in[lo:hi], out[lo:hi], args.Float64[0], args.Float64[1])
	return nil
}

// acceleratedStrategy owns the device handles. They are opened on first use
// and released once by close.
type acceleratedStrategy struct {
	provider accel.Provider
	log      *logger.Logger

	mu      sync.RWMutex
	device  accel.Device
	queue   accel.Queue
	program accel.Program
	closed  bool
}

func newAcceleratedStrategy(p accel.Provider, log *logger.Logger) *acceleratedStrategy {
	if p == nil {
		p = accel.None{}
	}
	return &acceleratedStrategy{provider: p, log: log}
}

func (a *acceleratedStrategy) available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.device != nil && a.queue != nil
}

// ensure performs the lazy device initialization. A failure here means the
// accelerator is unavailable and leaves no handle open.
func (a *acceleratedStrategy) ensure() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return accel.ErrDeviceClosed
	}
	if a.device != nil && a.queue != nil {
		return nil
	}

	dev, err := a.provider.Open()
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	q, err := dev.NewQueue()
	if err != nil {
		_ = dev.Close()
		return fmt.Errorf("create command queue: %w", err)
	}
	a.device, a.queue = dev, q

	info := dev.Info()
	a.log.Info("accelerator initialized",
		logger.String("platform", info.Platform),
		logger.String("device", info.Name),
		logger.String("type", info.Type),
		logger.Int("compute_units", info.ComputeUnits),
		logger.Int64("memory_bytes", info.MemoryBytes),
	)
	return nil
}

// buildProgram compiles the kernel once per device. Caller holds a.mu.
func (a *acceleratedStrategy) buildProgram() (accel.Program, error) {
	if a.program != nil {
		return a.program, nil
	}
	p, err := a.device.Build(ewmaKernelName, ewmaKernel)
	if err != nil {
		return nil, fmt.Errorf("build program %s: %w", ewmaKernelName, err)
	}
	a.program = p
	return p, nil
}

// run assumes ensure succeeded. Any error returned here happened after the
// call committed to the device.
func (a *acceleratedStrategy) run(data []float64, numSequences, seqLen int, alpha, threshold float64) ([]models.Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.device == nil {
		return nil, accel.ErrDeviceClosed
	}

	prog, err := a.buildProgram()
	if err != nil {
		return nil, err
	}

	in, err := a.device.Alloc(accel.Float64Buffer, len(data))
	if err != nil {
		return nil, fmt.Errorf("alloc input buffer: %w", err)
	}
	defer a.device.Release(in)

	out, err := a.device.Alloc(accel.Int8Buffer, len(data))
	if err != nil {
		return nil, fmt.Errorf("alloc output buffer: %w", err)
	}
	defer a.device.Release(out)

	copy(in.Float64s(), data)

	args := accel.Args{
		Buffers: []*accel.Buffer{in, out},
		Float64: []float64{alpha, threshold},
		Ints:    []int{seqLen},
	}
	if err := a.queue.Enqueue(context.Background(), prog, numSequences, args); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", ewmaKernelName, err)
	}

	actions := make([]models.Action, len(data))
	for i, v := range out.Int8s() {
		actions[i] = models.Action(v)
	}
	return actions, nil
}

// close releases program, queue and device in that order. Safe to call more
// than once and when nothing was initialized.
func (a *acceleratedStrategy) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	if a.program != nil {
		a.program.Release()
		a.program = nil
	}
	var errs []error
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue: %w", err))
		}
		a.queue = nil
	}
	if a.device != nil {
		if err := a.device.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close device: %w", err))
		}
		a.device = nil
	}
	return errors.Join(errs...)
}
