package accel

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

const defaultPoolMemory = 256 << 20

// PoolProvider opens a device that executes work-items on a bounded set of
// goroutines. Work-items are split into contiguous chunks, one per worker.
type PoolProvider struct {
	Workers     int
	MemoryBytes int64
}

func (p PoolProvider) Open() (Device, error) {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers <= 0 {
		return nil, ErrNoDevice
	}
	mem := p.MemoryBytes
	if mem <= 0 {
		mem = defaultPoolMemory
	}
	return &poolDevice{workers: workers, memory: mem}, nil
}

type poolDevice struct {
	workers int
	memory  int64
	used    atomic.Int64
	closed  atomic.Bool
}

func (d *poolDevice) Info() DeviceInfo {
	return DeviceInfo{
		Platform:     "go-runtime",
		Name:         fmt.Sprintf("worker-pool-%d", d.workers),
		Type:         "pool",
		ComputeUnits: d.workers,
		MemoryBytes:  d.memory,
	}
}

func (d *poolDevice) NewQueue() (Queue, error) {
	if d.closed.Load() {
		return nil, ErrDeviceClosed
	}
	return &poolQueue{dev: d}, nil
}

func (d *poolDevice) Build(name string, fn KernelFunc) (Program, error) {
	if d.closed.Load() {
		return nil, ErrDeviceClosed
	}
	if fn == nil {
		return nil, fmt.Errorf("accel: build %s: nil kernel", name)
	}
	return &poolProgram{name: name, fn: fn}, nil
}

func (d *poolDevice) Alloc(kind BufferKind, n int) (*Buffer, error) {
	if d.closed.Load() {
		return nil, ErrDeviceClosed
	}
	if n < 0 {
		return nil, fmt.Errorf("accel: alloc negative length %d", n)
	}
	size := int64(n) * kind.elemSize()
	if d.used.Add(size) > d.memory {
		d.used.Add(-size)
		return nil, fmt.Errorf("%w: need %d bytes, budget %d", ErrOutOfResources, size, d.memory)
	}
	return NewHostBuffer(kind, n), nil
}

func (d *poolDevice) Release(b *Buffer) {
	if b == nil {
		return
	}
	d.used.Add(-b.bytes())
}

func (d *poolDevice) Close() error {
	d.closed.Store(true)
	return nil
}

type poolProgram struct {
	name     string
	fn       KernelFunc
	released atomic.Bool
}

func (p *poolProgram) Name() string { return p.name }
func (p *poolProgram) Release()     { p.released.Store(true) }

type poolQueue struct {
	dev    *poolDevice
	mu     sync.Mutex
	closed bool
}

func (q *poolQueue) Enqueue(ctx context.Context, p Program, global int, args Args) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.dev.closed.Load() {
		return ErrDeviceClosed
	}
	prog, ok := p.(*poolProgram)
	if !ok {
		return fmt.Errorf("accel: program %q was not built for this device", p.Name())
	}
	if prog.released.Load() {
		return fmt.Errorf("accel: program %q released", prog.name)
	}
	if global <= 0 {
		return nil
	}

	workers := q.dev.workers
	if workers > global {
		workers = global
	}
	chunk := (global + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < global; start += chunk {
		lo, hi := start, start+chunk
		if hi > global {
			hi = global
		}
		g.Go(func() error {
			for gid := lo; gid < hi; gid++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := prog.fn(gid, args); err != nil {
					return fmt.Errorf("work-item %d: %w", gid, err)
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (q *poolQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}
