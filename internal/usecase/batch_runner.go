package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"OFISignal/internal/domain/models"
	drepo "OFISignal/internal/domain/repository"
	"OFISignal/pkg/cache"
	"OFISignal/pkg/logger"
	"OFISignal/pkg/queue"
)

var (
	ErrBatchTooLarge    = errors.New("batch exceeds element limit")
	ErrAsyncUnavailable = errors.New("async batch jobs are not configured")
	ErrJobNotFound      = errors.New("batch job not found")
)

const batchResultNamespace = "ofi:batch"

// BatchPredictor is the bulk side of the predictor.
type BatchPredictor interface {
	RunBatch(data []float64, numSequences, seqLen int) ([]models.Action, string, error)
}

// BatchRunner executes batch requests inline or through the job queue.
type BatchRunner struct {
	pred        BatchPredictor
	metrics     drepo.Metrics
	log         *logger.Logger
	maxElements int

	queue     queue.Queue
	results   cache.Service
	resultTTL time.Duration
}

// NewBatchRunner creates a runner. maxElements <= 0 disables the size limit.
func NewBatchRunner(pred BatchPredictor, metrics drepo.Metrics, maxElements int, lgr *logger.Logger) *BatchRunner {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &BatchRunner{
		pred:        pred,
		metrics:     metrics,
		log:         lgr.With("batch"),
		maxElements: maxElements,
		resultTTL:   time.Hour,
	}
}

// EnableAsync wires the job queue and the result cache used by Submit.
func (r *BatchRunner) EnableAsync(q queue.Queue, results cache.Service, ttl time.Duration) {
	r.queue = q
	r.results = results
	if ttl > 0 {
		r.resultTTL = ttl
	}
}

// AsyncEnabled reports whether Submit can be used.
func (r *BatchRunner) AsyncEnabled() bool { return r.queue != nil && r.results != nil }

func (r *BatchRunner) checkSize(req models.BatchRequest) error {
	if r.maxElements > 0 && len(req.Data) > r.maxElements {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(req.Data), r.maxElements)
	}
	return nil
}

// Run validates the size limit and runs the batch on the predictor.
func (r *BatchRunner) Run(req models.BatchRequest) (models.BatchResult, error) {
	if err := r.checkSize(req); err != nil {
		return models.BatchResult{Status: models.BatchStatusFailed, Error: err.Error()}, err
	}

	start := time.Now()
	actions, path, err := r.pred.RunBatch(req.Data, req.NumSequences, req.SeqLen)
	r.metrics.RecordLatency("batch", time.Since(start).Seconds())
	if err != nil {
		if path == "" {
			path = "rejected"
		}
		r.metrics.RecordBatch(path, "error")
		r.metrics.RecordError("batch")
		return models.BatchResult{Mode: path, Status: models.BatchStatusFailed, Error: err.Error()}, err
	}
	r.metrics.RecordBatch(path, "ok")
	return models.BatchResult{Mode: path, Actions: actions, Status: models.BatchStatusDone}, nil
}

// BatchJobPayload is the queued form of a batch request.
type BatchJobPayload struct {
	JobID   string              `json:"job_id"`
	Request models.BatchRequest `json:"request"`
}

// Submit records a queued result and enqueues the batch. It returns the job id.
func (r *BatchRunner) Submit(ctx context.Context, req models.BatchRequest) (string, error) {
	if !r.AsyncEnabled() {
		return "", ErrAsyncUnavailable
	}
	if err := r.checkSize(req); err != nil {
		return "", err
	}

	id := uuid.NewString()
	key := cache.Key(batchResultNamespace, id)
	if err := r.results.Set(ctx, key, models.BatchResult{JobID: id, Status: models.BatchStatusQueued}, r.resultTTL); err != nil {
		return "", fmt.Errorf("store job status: %w", err)
	}
	if _, err := r.queue.Enqueue(ctx, BatchJobType, BatchJobPayload{JobID: id, Request: req}); err != nil {
		_ = r.results.Delete(ctx, key)
		return "", fmt.Errorf("enqueue batch: %w", err)
	}
	r.log.Debug("batch queued", logger.String("job_id", id), logger.Int("elements", len(req.Data)))
	return id, nil
}

// Result returns the stored result of a submitted job.
func (r *BatchRunner) Result(ctx context.Context, id string) (models.BatchResult, error) {
	if r.results == nil {
		return models.BatchResult{}, ErrAsyncUnavailable
	}
	var res models.BatchResult
	if err := r.results.Get(ctx, cache.Key(batchResultNamespace, id), &res); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.BatchResult{}, ErrJobNotFound
		}
		return models.BatchResult{}, err
	}
	return res, nil
}

func (r *BatchRunner) storeResult(ctx context.Context, res models.BatchResult) error {
	return r.results.Set(ctx, cache.Key(batchResultNamespace, res.JobID), res, r.resultTTL)
}
