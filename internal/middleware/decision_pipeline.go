package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"OFISignal/internal/domain/models"
	domrepo "OFISignal/internal/domain/repository"
	"OFISignal/pkg/logger"
)

// ErrBufferFull is returned by Process when the decision was dropped.
var ErrBufferFull = errors.New("decision pipeline buffer full")

// Sink receives decisions in emission order.
type Sink interface {
	Emit(ctx context.Context, ds []models.Decision) error
}

// DecisionPipeline sits between the ingestion loop and the decision sinks.
// Process never blocks the caller; a single flusher batches decisions and
// retries a failing batch in place, so sinks observe emission order.
type DecisionPipeline struct {
	sink    Sink
	metrics domrepo.Metrics
	log     *logger.Logger

	bufSize       int
	batchSize     int
	flushInterval time.Duration
	backoffMin    time.Duration
	backoffMax    time.Duration
	maxRetries    int

	bufCh   chan models.Decision
	stopCh  chan struct{}
	done    chan struct{}
	mu      sync.Mutex
	started bool
	stopped bool

	depthHook func(int)
	dropHook  func()
}

type PipelineOption func(*DecisionPipeline)

// WithBufferSize sets how many decisions may wait for the flusher.
func WithBufferSize(n int) PipelineOption {
	return func(p *DecisionPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatchSize caps the decisions handed to the sink per call.
func WithBatchSize(n int) PipelineOption {
	return func(p *DecisionPipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval flushes partial batches at least this often.
func WithFlushInterval(d time.Duration) PipelineOption {
	return func(p *DecisionPipeline) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

// WithRetry sets sink retry attempts and the exponential backoff range.
func WithRetry(maxRetries int, min, max time.Duration) PipelineOption {
	return func(p *DecisionPipeline) {
		if maxRetries >= 0 {
			p.maxRetries = maxRetries
		}
		if min > 0 {
			p.backoffMin = min
		}
		if max >= min && max > 0 {
			p.backoffMax = max
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *DecisionPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// WithHooks reports buffer depth after each enqueue and every drop.
func WithHooks(depth func(int), drop func()) PipelineOption {
	return func(p *DecisionPipeline) {
		p.depthHook = depth
		p.dropHook = drop
	}
}

// NewDecisionPipeline creates a new pipeline.
func NewDecisionPipeline(sink Sink, metrics domrepo.Metrics, opts ...PipelineOption) *DecisionPipeline {
	p := &DecisionPipeline{
		sink:          sink,
		metrics:       metrics,
		log:           logger.Nop(),
		bufSize:       4096,
		batchSize:     256,
		flushInterval: 100 * time.Millisecond,
		backoffMin:    50 * time.Millisecond,
		backoffMax:    2 * time.Second,
		maxRetries:    5,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("pipeline")
	p.bufCh = make(chan models.Decision, p.bufSize)
	return p
}

// Start launches the flusher. It is a no-op after the first call.
func (p *DecisionPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop flushes what is buffered and waits for the flusher, or for ctx.
func (p *DecisionPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	close(p.stopCh)
	if !started {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pipeline stop: %w", ctx.Err())
	}
}

// Process enqueues a decision for the sinks without blocking.
func (p *DecisionPipeline) Process(_ context.Context, d models.Decision) error {
	if err := validateDecision(d); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	select {
	case p.bufCh <- d:
		if p.depthHook != nil {
			p.depthHook(len(p.bufCh))
		}
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		if p.dropHook != nil {
			p.dropHook()
		}
		return ErrBufferFull
	}
}

// Pending returns the number of buffered decisions.
func (p *DecisionPipeline) Pending() int { return len(p.bufCh) }

func (p *DecisionPipeline) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	batch := make([]models.Decision, 0, p.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.flush(ctx, batch)
		batch = batch[:0]
		if p.depthHook != nil {
			p.depthHook(len(p.bufCh))
		}
	}

	for {
		select {
		case <-p.stopCh:
			for {
				select {
				case d := <-p.bufCh:
					batch = append(batch, d)
					if len(batch) >= p.batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		case d := <-p.bufCh:
			batch = append(batch, d)
			if len(batch) >= p.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// flush hands one batch to the sink, retrying with exponential backoff.
// The batch is dropped after maxRetries failed retries.
func (p *DecisionPipeline) flush(ctx context.Context, batch []models.Decision) {
	start := time.Now()
	backoff := p.backoffMin
	for attempt := 0; ; attempt++ {
		err := p.sink.Emit(ctx, batch)
		if err == nil {
			p.metrics.RecordLatency("pipeline_flush", time.Since(start).Seconds())
			return
		}
		p.metrics.RecordError("pipeline_flush")
		if attempt >= p.maxRetries {
			p.metrics.RecordError("pipeline_batch_drop")
			p.log.Error("dropping decision batch",
				logger.Int("size", len(batch)),
				logger.Uint64("first_seq", batch[0].Sequence),
				logger.Error(err),
			)
			return
		}
		p.log.Warn("sink emit failed; retrying",
			logger.Int("attempt", attempt+1),
			logger.Duration("backoff", backoff),
			logger.Error(err),
		)
		select {
		case <-time.After(backoff):
		case <-p.stopCh:
			// shutting down: one immediate last attempt, no more waiting
			if err := p.sink.Emit(ctx, batch); err == nil {
				return
			}
			p.metrics.RecordError("pipeline_batch_drop")
			return
		case <-ctx.Done():
			p.metrics.RecordError("pipeline_batch_drop")
			return
		}
		if backoff < p.backoffMax {
			backoff *= 2
			if backoff > p.backoffMax {
				backoff = p.backoffMax
			}
		}
	}
}

func validateDecision(d models.Decision) error {
	switch d.Action {
	case models.ActionBuy, models.ActionSell, models.ActionHold:
		return nil
	default:
		return fmt.Errorf("invalid action %d", d.Action)
	}
}
