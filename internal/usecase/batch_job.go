package usecase

import (
	"context"
	"errors"
	"fmt"

	"OFISignal/internal/services/predictor"
	"OFISignal/pkg/logger"
	"OFISignal/pkg/queue"
)

// BatchJobType is the queue message type handled by BatchJob.
const BatchJobType = "ewma_batch"

// BatchJob runs queued batches and stores their results.
type BatchJob struct {
	runner *BatchRunner
	log    *logger.Logger
}

func NewBatchJob(runner *BatchRunner, lgr *logger.Logger) *BatchJob {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &BatchJob{runner: runner, log: lgr.With("batch_job")}
}

var _ queue.Job = (*BatchJob)(nil)

func (j *BatchJob) Name() string { return "ewma-batch" }
func (j *BatchJob) Type() string { return BatchJobType }

// Handle stores a result for every attempt. Only accelerator failures are
// returned for retry; invalid input fails the job for good.
func (j *BatchJob) Handle(ctx context.Context, msg queue.Message) error {
	p, err := queue.Decode[BatchJobPayload](msg)
	if err != nil {
		return err
	}
	if p.JobID == "" {
		return fmt.Errorf("batch job without id")
	}

	res, runErr := j.runner.Run(p.Request)
	res.JobID = p.JobID
	if err := j.runner.storeResult(ctx, res); err != nil {
		return fmt.Errorf("store batch result: %w", err)
	}

	if runErr != nil {
		j.log.Warn("batch job failed",
			logger.String("job_id", p.JobID),
			logger.Int("attempt", msg.Attempts),
			logger.Error(runErr),
		)
		if errors.Is(runErr, predictor.ErrAcceleratorFailure) {
			return runErr
		}
	}
	return nil
}
