// Package accel models a parallel offload device with explicit handles:
// a device context, a command queue, compiled programs and device buffers.
// Work is expressed as a kernel invoked once per global work-item index.
package accel

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoDevice reports that no usable device exists (driver or backend absent).
	ErrNoDevice = errors.New("accel: no device available")
	// ErrDeviceClosed is returned by handles used after release.
	ErrDeviceClosed = errors.New("accel: device closed")
	// ErrOutOfResources is returned when a buffer does not fit the device memory budget.
	ErrOutOfResources = errors.New("accel: out of device memory")
)

// DeviceInfo describes the selected device for diagnostics.
type DeviceInfo struct {
	Platform     string
	Name         string
	Type         string
	ComputeUnits int
	MemoryBytes  int64
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("%s/%s (type=%s units=%d mem=%d)", i.Platform, i.Name, i.Type, i.ComputeUnits, i.MemoryBytes)
}

// BufferKind is the element type of a device buffer.
type BufferKind int

const (
	Float64Buffer BufferKind = iota
	Int8Buffer
)

func (k BufferKind) elemSize() int64 {
	if k == Float64Buffer {
		return 8
	}
	return 1
}

// Buffer is device memory. Kernels index into it by work-item.
type Buffer struct {
	kind BufferKind
	f64  []float64
	i8   []int8
}

// NewHostBuffer allocates a buffer outside any device budget.
func NewHostBuffer(kind BufferKind, n int) *Buffer {
	b := &Buffer{kind: kind}
	switch kind {
	case Float64Buffer:
		b.f64 = make([]float64, n)
	case Int8Buffer:
		b.i8 = make([]int8, n)
	}
	return b
}

func (b *Buffer) Kind() BufferKind    { return b.kind }
func (b *Buffer) Float64s() []float64 { return b.f64 }
func (b *Buffer) Int8s() []int8       { return b.i8 }

func (b *Buffer) bytes() int64 { return int64(b.Len()) * b.kind.elemSize() }

func (b *Buffer) Len() int {
	if b.kind == Float64Buffer {
		return len(b.f64)
	}
	return len(b.i8)
}

// Args are the argument slots bound to one kernel launch.
type Args struct {
	Buffers []*Buffer
	Float64 []float64
	Ints    []int
}

// KernelFunc is the body of one work-item.
type KernelFunc func(gid int, args Args) error

// Program is a kernel built for a specific device.
type Program interface {
	Name() string
	Release()
}

// Queue submits launches to its device in submission order.
type Queue interface {
	// Enqueue runs the program for every gid in [0, global) and blocks until
	// all work-items finished. The first work-item error is returned.
	Enqueue(ctx context.Context, p Program, global int, args Args) error
	Close() error
}

// Device is an initialized device context.
type Device interface {
	Info() DeviceInfo
	NewQueue() (Queue, error)
	Build(name string, fn KernelFunc) (Program, error)
	Alloc(kind BufferKind, n int) (*Buffer, error)
	Release(b *Buffer)
	Close() error
}

// Provider discovers and opens a device.
type Provider interface {
	Open() (Device, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func() (Device, error)

func (f ProviderFunc) Open() (Device, error) { return f() }

// None is a provider for builds or hosts without an accelerator.
type None struct{}

func (None) Open() (Device, error) { return nil, ErrNoDevice }

// NewProvider selects a provider by backend name ("pool" or "none").
func NewProvider(backend string, workers int, memoryBytes int64) (Provider, error) {
	switch backend {
	case "", "none":
		return None{}, nil
	case "pool":
		return PoolProvider{Workers: workers, MemoryBytes: memoryBytes}, nil
	default:
		return nil, fmt.Errorf("accel: unknown backend %q", backend)
	}
}
