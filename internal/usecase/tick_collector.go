package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"OFISignal/internal/domain/models"
	drepo "OFISignal/internal/domain/repository"
	"OFISignal/pkg/logger"
)

// DecisionPipeline forwards emitted decisions to the sinks.
type DecisionPipeline interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	Process(ctx context.Context, d models.Decision) error
}

// CollectorOption configures a TickCollector.
type CollectorOption func(*TickCollector)

// WithPipeline forwards decisions to pipe. emitHold also forwards HOLD.
func WithPipeline(pipe DecisionPipeline, emitHold bool) CollectorOption {
	return func(c *TickCollector) {
		c.pipe = pipe
		c.emitHold = emitHold
	}
}

// WithSnapshots saves the processor snapshot every interval.
func WithSnapshots(store drepo.SnapshotStore, interval time.Duration) CollectorOption {
	return func(c *TickCollector) {
		c.snapshots = store
		if interval > 0 {
			c.snapshotInterval = interval
		}
	}
}

// WithReconnectDelay sets the pause between failed reconnect attempts.
func WithReconnectDelay(d time.Duration) CollectorOption {
	return func(c *TickCollector) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithCollectorLogger sets the logger.
func WithCollectorLogger(l *logger.Logger) CollectorOption {
	return func(c *TickCollector) {
		if l != nil {
			c.log = l
		}
	}
}

// TickCollector reads a TickStream and feeds every tick, in arrival order,
// through the TickProcessor on one goroutine.
type TickCollector struct {
	stream  drepo.TickStream
	proc    *TickProcessor
	metrics drepo.Metrics
	log     *logger.Logger

	pipe             DecisionPipeline
	emitHold         bool
	snapshots        drepo.SnapshotStore
	snapshotInterval time.Duration
	reconnectDelay   time.Duration

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewTickCollector creates a new TickCollector instance.
func NewTickCollector(stream drepo.TickStream, proc *TickProcessor, metrics drepo.Metrics, opts ...CollectorOption) *TickCollector {
	c := &TickCollector{
		stream:           stream,
		proc:             proc,
		metrics:          metrics,
		log:              logger.Nop(),
		snapshotInterval: time.Second,
		reconnectDelay:   time.Second,
		stopped:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("collector")
	return c
}

// IsConnected returns true if the tick stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Processor returns the underlying TickProcessor.
func (c *TickCollector) Processor() *TickProcessor { return c.proc }

// Start connects the stream and begins ingestion until ctx is cancelled or
// Shutdown is called.
func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		// sinks keep flushing after ingestion stops
		c.pipe.Start(context.WithoutCancel(ctx))
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(c.stopped)
		c.run(runCtx)
	}()

	if c.snapshots != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.snapshotLoop(runCtx)
		}()
	}
	return nil
}

// Done is closed once the ingestion loop has exited.
func (c *TickCollector) Done() <-chan struct{} { return c.stopped }

func (c *TickCollector) run(ctx context.Context) {
	for {
		ticks, errs := c.stream.Read(ctx)
		err := c.consume(ctx, ticks, errs)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("stream closed")
		}
		c.metrics.RecordError("stream")
		c.log.Warn("tick stream interrupted; reconnecting", logger.Error(err))
		if !c.reconnect(ctx) {
			return
		}
	}
}

func (c *TickCollector) consume(ctx context.Context, ticks <-chan models.Tick, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-ticks:
			if !ok {
				// the reader sends its error, if any, before closing
				select {
				case err := <-errs:
					return err
				case <-ctx.Done():
					return nil
				}
			}
			c.handle(ctx, t)
		}
	}
}

func (c *TickCollector) handle(ctx context.Context, t models.Tick) {
	d, ok := c.proc.Process(t)
	if !ok || c.pipe == nil {
		return
	}
	if d.Action == models.ActionHold && !c.emitHold {
		return
	}
	if err := c.pipe.Process(ctx, d); err != nil {
		c.log.Debug("decision not forwarded", logger.Uint64("seq", d.Sequence), logger.Error(err))
	}
}

func (c *TickCollector) reconnect(ctx context.Context) bool {
	for {
		err := c.stream.Reconnect(ctx)
		if err == nil {
			return true
		}
		c.metrics.RecordError("reconnect")
		c.log.Warn("reconnect failed", logger.Error(err))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *TickCollector) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(c.snapshotInterval)
	defer ticker.Stop()
	var lastUpdated int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.proc.Snapshot()
			if s.UpdatedAt == lastUpdated {
				continue
			}
			if err := c.snapshots.Save(ctx, s); err != nil {
				c.metrics.RecordError("snapshot")
				c.log.Debug("snapshot save failed", logger.Error(err))
				continue
			}
			lastUpdated = s.UpdatedAt
		}
	}
}

// Shutdown stops ingestion, drains the pipeline and closes the stream.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("collector shutdown: %w", ctx.Err())
	}

	var errs []error
	if c.snapshots != nil {
		if err := c.snapshots.Save(ctx, c.proc.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("final snapshot: %w", err))
		}
	}
	if c.pipe != nil {
		if err := c.pipe.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
