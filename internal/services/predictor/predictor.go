// Package predictor implements the EWMA signal filter: a long-lived streaming
// state fed one OFI sample at a time, and a batch path that replays many
// independent sequences on the CPU or on an accelerator device.
package predictor

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"OFISignal/internal/domain/models"
	"OFISignal/internal/services/accel"
	"OFISignal/pkg/logger"
)

var (
	// ErrInvalidBatch reports a batch whose shape does not match its data.
	ErrInvalidBatch = errors.New("invalid batch shape")
	// ErrAcceleratorFailure reports a device error after a batch started on the accelerator.
	ErrAcceleratorFailure = errors.New("accelerator operation failed")
)

// Batch execution paths, as reported by RunBatch.
const (
	PathCPU         = "cpu"
	PathAccelerated = "accelerated"
	PathFallback    = "fallback"
)

type Predictor struct {
	alpha     float64
	threshold float64

	mu   sync.Mutex
	ewma float64

	modeMu sync.RWMutex
	mode   models.ExecutionMode

	cpu   strategy
	accel *acceleratedStrategy
	log   *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

type Option func(*options)

type options struct {
	log      *logger.Logger
	provider accel.Provider
	mode     models.ExecutionMode
}

func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithProvider sets the device provider used by the accelerated path.
// Without it the predictor behaves as a build with no accelerator.
func WithProvider(p accel.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithMode selects the initial execution mode. ModeAccelerated goes through
// SetMode, so it is coerced to ModeCPU when the device cannot be opened.
func WithMode(m models.ExecutionMode) Option {
	return func(o *options) { o.mode = m }
}

func New(alpha, threshold float64, opts ...Option) (*Predictor, error) {
	if math.IsNaN(alpha) || alpha <= 0 || alpha > 1 {
		return nil, fmt.Errorf("alpha must be in (0,1], got %v", alpha)
	}
	if math.IsNaN(threshold) || threshold < 0 {
		return nil, fmt.Errorf("threshold must be >= 0, got %v", threshold)
	}

	o := options{mode: models.ModeCPU}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Nop()
	}

	p := &Predictor{
		alpha:     alpha,
		threshold: threshold,
		mode:      models.ModeCPU,
		cpu:       cpuStrategy{},
		accel:     newAcceleratedStrategy(o.provider, o.log),
		log:       o.log,
	}
	if o.mode == models.ModeAccelerated {
		p.SetMode(models.ModeAccelerated)
	}
	return p, nil
}

func (p *Predictor) Alpha() float64     { return p.alpha }
func (p *Predictor) Threshold() float64 { return p.threshold }

// ProcessSample folds x into the running average and classifies the result.
func (p *Predictor) ProcessSample(x float64) models.Action {
	p.mu.Lock()
	p.ewma = step(p.alpha, x, p.ewma)
	v := p.ewma
	p.mu.Unlock()
	return classify(v, p.threshold)
}

// EWMA returns the current smoothed value.
func (p *Predictor) EWMA() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ewma
}

func (p *Predictor) Mode() models.ExecutionMode {
	p.modeMu.RLock()
	defer p.modeMu.RUnlock()
	return p.mode
}

// SetMode changes the execution mode and returns the mode now in effect.
// Requesting ModeAccelerated initializes the device; if that fails the mode
// stays ModeCPU.
func (p *Predictor) SetMode(m models.ExecutionMode) models.ExecutionMode {
	if m == models.ModeAccelerated {
		if err := p.accel.ensure(); err != nil {
			p.log.Warn("accelerator init failed; staying in CPU mode", logger.Error(err))
			m = models.ModeCPU
		}
	}
	p.modeMu.Lock()
	p.mode = m
	p.modeMu.Unlock()
	return m
}

// AcceleratorAvailable reports whether the device is initialized. It never
// attempts initialization.
func (p *Predictor) AcceleratorAvailable() bool {
	return p.accel.available()
}

// ProcessBatch runs numSequences independent sequences of seqLen samples,
// each from a zero state, and returns one action per sample.
func (p *Predictor) ProcessBatch(data []float64, numSequences, seqLen int) ([]models.Action, error) {
	actions, _, err := p.RunBatch(data, numSequences, seqLen)
	return actions, err
}

// RunBatch is ProcessBatch that also reports which path produced the result.
func (p *Predictor) RunBatch(data []float64, numSequences, seqLen int) ([]models.Action, string, error) {
	if err := validateShape(len(data), numSequences, seqLen); err != nil {
		return nil, "", err
	}

	if p.Mode() != models.ModeAccelerated {
		out, err := p.cpu.run(data, numSequences, seqLen, p.alpha, p.threshold)
		return out, PathCPU, err
	}

	if err := p.accel.ensure(); err != nil {
		p.log.Warn("accelerator not available; falling back to CPU batch",
			logger.Error(err),
			logger.Int("sequences", numSequences),
			logger.Int("seq_len", seqLen),
		)
		out, err := p.cpu.run(data, numSequences, seqLen, p.alpha, p.threshold)
		return out, PathFallback, err
	}

	out, err := p.accel.run(data, numSequences, seqLen, p.alpha, p.threshold)
	if err != nil {
		p.log.Error("accelerated batch failed",
			logger.Error(err),
			logger.Int("sequences", numSequences),
			logger.Int("seq_len", seqLen),
		)
		return nil, PathAccelerated, fmt.Errorf("%w: %w", ErrAcceleratorFailure, err)
	}
	return out, PathAccelerated, nil
}

// Close releases device handles. Later accelerated calls fall back to the CPU.
func (p *Predictor) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.accel.close()
	})
	return p.closeErr
}

func validateShape(n, numSequences, seqLen int) error {
	if numSequences <= 0 {
		return fmt.Errorf("%w: num_sequences must be positive, got %d", ErrInvalidBatch, numSequences)
	}
	if seqLen <= 0 {
		return fmt.Errorf("%w: seq_len must be positive, got %d", ErrInvalidBatch, seqLen)
	}
	if numSequences > math.MaxInt/seqLen || n != numSequences*seqLen {
		return fmt.Errorf("%w: %d samples for %d sequences of %d", ErrInvalidBatch, n, numSequences, seqLen)
	}
	return nil
}
