package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"OFISignal/internal/domain/models"
	"OFISignal/internal/services/predictor"
	"OFISignal/pkg/cache"
	"OFISignal/pkg/logger"
	"OFISignal/pkg/metrics"
	"OFISignal/pkg/queue"
)

func newRunner(t *testing.T, maxElements int) *BatchRunner {
	t.Helper()
	pred, err := predictor.New(0.15, 40)
	require.NoError(t, err)
	return NewBatchRunner(pred, metrics.Nop{}, maxElements, nil)
}

func TestBatchRunnerRunsOnCPU(t *testing.T) {
	r := newRunner(t, 0)
	res, err := r.Run(models.BatchRequest{Data: []float64{0, 300, 0, 0, -400, 0}, NumSequences: 2, SeqLen: 3})
	require.NoError(t, err)
	require.Equal(t, predictor.PathCPU, res.Mode)
	require.Equal(t, models.BatchStatusDone, res.Status)
	require.Equal(t, []models.Action{
		models.ActionHold, models.ActionBuy, models.ActionHold,
		models.ActionHold, models.ActionSell, models.ActionSell,
	}, res.Actions)
}

func TestBatchRunnerRejects(t *testing.T) {
	r := newRunner(t, 4)
	_, err := r.Run(models.BatchRequest{Data: make([]float64, 6), NumSequences: 2, SeqLen: 3})
	require.ErrorIs(t, err, ErrBatchTooLarge)

	res, err := r.Run(models.BatchRequest{Data: make([]float64, 3), NumSequences: 2, SeqLen: 3})
	require.ErrorIs(t, err, predictor.ErrInvalidBatch)
	require.Equal(t, models.BatchStatusFailed, res.Status)
	require.Empty(t, res.Actions)
}

func TestSubmitWithoutQueue(t *testing.T) {
	_, err := newRunner(t, 0).Submit(context.Background(), models.BatchRequest{})
	require.ErrorIs(t, err, ErrAsyncUnavailable)
}

func TestSubmittedJobStoresResult(t *testing.T) {
	r := newRunner(t, 0)
	results := cache.NewMemoryCache()
	t.Cleanup(func() { _ = results.Close() })

	q := queue.NewMemoryQueue(logger.Nop(), &queue.QueueConfig{Workers: 1, RetryDelay: time.Millisecond})
	q.RegisterJob(NewBatchJob(r, nil))
	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	r.EnableAsync(q, results, time.Minute)

	ctx := context.Background()
	id, err := r.Submit(ctx, models.BatchRequest{Data: []float64{0, 300}, NumSequences: 1, SeqLen: 2})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		res, err := r.Result(ctx, id)
		return err == nil && res.Status == models.BatchStatusDone
	}, 2*time.Second, 5*time.Millisecond)

	res, err := r.Result(ctx, id)
	require.NoError(t, err)
	require.Equal(t, id, res.JobID)
	require.Equal(t, []models.Action{models.ActionHold, models.ActionBuy}, res.Actions)

	bad, err := r.Submit(ctx, models.BatchRequest{Data: []float64{1}, NumSequences: 2, SeqLen: 1})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		res, err := r.Result(ctx, bad)
		return err == nil && res.Status == models.BatchStatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	_, err = r.Result(ctx, "missing")
	require.True(t, errors.Is(err, ErrJobNotFound))
}
