package usecase

import (
	"context"
	"errors"
	"fmt"

	"OFISignal/internal/domain/models"
	drepo "OFISignal/internal/domain/repository"
)

// DecisionSink fans a decision batch out to the configured publisher and
// storage. Either may be nil. A failed batch is retried whole by the
// pipeline, so delivery is at-least-once.
type DecisionSink struct {
	pub   drepo.DecisionPublisher
	store drepo.DecisionStorage
}

// NewDecisionSink creates a sink over the given backends.
func NewDecisionSink(pub drepo.DecisionPublisher, store drepo.DecisionStorage) *DecisionSink {
	return &DecisionSink{pub: pub, store: store}
}

// Enabled reports whether any backend is configured.
func (s *DecisionSink) Enabled() bool { return s.pub != nil || s.store != nil }

// Emit writes ds to every backend.
func (s *DecisionSink) Emit(ctx context.Context, ds []models.Decision) error {
	if len(ds) == 0 {
		return nil
	}
	var errs []error
	if s.pub != nil {
		if err := s.pub.PublishBatch(ctx, ds); err != nil {
			errs = append(errs, fmt.Errorf("publish decisions: %w", err))
		}
	}
	if s.store != nil {
		if err := s.store.StoreBatch(ctx, ds); err != nil {
			errs = append(errs, fmt.Errorf("store decisions: %w", err))
		}
	}
	return errors.Join(errs...)
}
