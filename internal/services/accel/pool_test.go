package accel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoneProviderHasNoDevice(t *testing.T) {
	_, err := None{}.Open()
	require.ErrorIs(t, err, ErrNoDevice)
}

func TestNewProviderBackends(t *testing.T) {
	p, err := NewProvider("none", 0, 0)
	require.NoError(t, err)
	require.IsType(t, None{}, p)

	p, err = NewProvider("pool", 3, 1024)
	require.NoError(t, err)
	require.Equal(t, PoolProvider{Workers: 3, MemoryBytes: 1024}, p)

	_, err = NewProvider("opencl", 0, 0)
	require.Error(t, err)
}

func TestPoolEnqueueVisitsEveryWorkItemOnce(t *testing.T) {
	dev, err := PoolProvider{Workers: 4}.Open()
	require.NoError(t, err)
	defer dev.Close()

	q, err := dev.NewQueue()
	require.NoError(t, err)
	defer q.Close()

	const global = 1037
	out, err := dev.Alloc(Int8Buffer, global)
	require.NoError(t, err)
	defer dev.Release(out)

	var calls atomic.Int64
	prog, err := dev.Build("mark", func(gid int, args Args) error {
		calls.Add(1)
		args.Buffers[0].Int8s()[gid]++
		return nil
	})
	require.NoError(t, err)
	defer prog.Release()

	require.NoError(t, q.Enqueue(context.Background(), prog, global, Args{Buffers: []*Buffer{out}}))
	require.EqualValues(t, global, calls.Load())
	for i, v := range out.Int8s() {
		if v != 1 {
			t.Fatalf("work-item %d ran %d times", i, v)
		}
	}
}

func TestPoolEnqueuePropagatesKernelError(t *testing.T) {
	dev, err := PoolProvider{Workers: 2}.Open()
	require.NoError(t, err)
	q, err := dev.NewQueue()
	require.NoError(t, err)

	boom := errors.New("boom")
	prog, err := dev.Build("fail", func(gid int, _ Args) error {
		if gid == 5 {
			return boom
		}
		return nil
	})
	require.NoError(t, err)

	err = q.Enqueue(context.Background(), prog, 10, Args{})
	require.ErrorIs(t, err, boom)
}

func TestPoolAllocRespectsMemoryBudget(t *testing.T) {
	dev, err := PoolProvider{Workers: 1, MemoryBytes: 80}.Open()
	require.NoError(t, err)

	b, err := dev.Alloc(Float64Buffer, 10)
	require.NoError(t, err)

	_, err = dev.Alloc(Int8Buffer, 1)
	require.ErrorIs(t, err, ErrOutOfResources)

	dev.Release(b)
	_, err = dev.Alloc(Int8Buffer, 80)
	require.NoError(t, err)
}

func TestPoolHandlesFailAfterClose(t *testing.T) {
	dev, err := PoolProvider{Workers: 1}.Open()
	require.NoError(t, err)
	q, err := dev.NewQueue()
	require.NoError(t, err)
	prog, err := dev.Build("noop", func(int, Args) error { return nil })
	require.NoError(t, err)

	require.NoError(t, dev.Close())
	require.ErrorIs(t, q.Enqueue(context.Background(), prog, 1, Args{}), ErrDeviceClosed)
	_, err = dev.Alloc(Int8Buffer, 1)
	require.ErrorIs(t, err, ErrDeviceClosed)
}
