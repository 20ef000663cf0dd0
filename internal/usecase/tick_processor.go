package usecase

import (
	"math"
	"sync"
	"time"

	"OFISignal/internal/domain/models"
	drepo "OFISignal/internal/domain/repository"
	"OFISignal/internal/services/book"
	"OFISignal/internal/services/features"
	"OFISignal/pkg/logger"
	"OFISignal/pkg/util"
)

// StreamPredictor is the streaming side of the predictor.
type StreamPredictor interface {
	ProcessSample(x float64) models.Action
	EWMA() float64
}

// TickProcessor runs the ordered ingestion step: apply the tick to the
// book, derive OFI against the previous tick, advance the predictor.
// Process must be called from a single goroutine.
type TickProcessor struct {
	book    *book.State
	pred    StreamPredictor
	metrics drepo.Metrics
	stats   *LatencyStats
	log     *logger.Logger

	mu   sync.RWMutex
	snap models.Snapshot
	now  func() time.Time
}

// NewTickProcessor creates a new TickProcessor instance.
func NewTickProcessor(pred StreamPredictor, metrics drepo.Metrics, stats *LatencyStats, lgr *logger.Logger) *TickProcessor {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if stats == nil {
		stats = NewLatencyStats(0)
	}
	return &TickProcessor{
		book:    book.New(),
		pred:    pred,
		metrics: metrics,
		stats:   stats,
		log:     lgr.With("ingest"),
		snap:    models.Snapshot{Action: models.ActionHold.String()},
		now:     time.Now,
	}
}

// Process handles one tick. The first tick of a stream only seeds the book
// and yields no decision.
func (p *TickProcessor) Process(t models.Tick) (models.Decision, bool) {
	p.metrics.RecordTick()
	p.metrics.RecordLastPrice(t.Price)

	prev, ok := p.book.Previous()
	p.book.ApplyTick(t)
	if !ok {
		return models.Decision{}, false
	}

	ofi := features.ComputeOFI(prev, t)

	start := time.Now()
	action := p.pred.ProcessSample(ofi)
	elapsed := time.Since(start)

	ewma := p.pred.EWMA()
	decUs := float64(elapsed.Nanoseconds()) / 1000
	srcUs := util.MicrosBetween(t.SourceTimestamp, t.ReceiveTimestamp)

	p.stats.Add(decUs, srcUs)
	p.metrics.RecordLatency("decision", elapsed.Seconds())
	p.metrics.RecordLatency("src_to_recv", srcUs/1e6)
	p.metrics.RecordEWMA(ewma)
	p.metrics.RecordAction(action.String())

	d := models.Decision{
		Sequence:         t.Sequence,
		Action:           action,
		EWMA:             ewma,
		OFI:              ofi,
		Price:            t.Price,
		SourceTimestamp:  t.SourceTimestamp,
		ReceiveTimestamp: t.ReceiveTimestamp,
		DecisionMicros:   decUs,
		TransportMicros:  srcUs,
	}

	if action != models.ActionHold {
		p.log.Info("signal",
			logger.Uint64("seq", t.Sequence),
			logger.String("action", action.String()),
			logger.Float64("ewma", math.Round(ewma*100)/100),
			logger.Float64("ofi", ofi),
			logger.Float64("recv_to_decision_us", decUs),
			logger.Float64("src_to_recv_us", srcUs),
		)
	}

	p.mu.Lock()
	p.snap = models.Snapshot{
		Sequence:  t.Sequence,
		EWMA:      ewma,
		Action:    action.String(),
		Price:     t.Price,
		UpdatedAt: p.now().UnixMilli(),
	}
	p.mu.Unlock()

	return d, true
}

// Snapshot returns the state after the latest decision.
func (p *TickProcessor) Snapshot() models.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Stats exposes the latency recorder.
func (p *TickProcessor) Stats() *LatencyStats { return p.stats }
