package repository

import (
	"context"

	"OFISignal/internal/domain/models"
)

// TickStream is a transport that delivers parsed ticks in arrival order.
type TickStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// DecisionPublisher fans decisions out to downstream consumers.
type DecisionPublisher interface {
	Publish(ctx context.Context, d models.Decision) error
	PublishBatch(ctx context.Context, ds []models.Decision) error
	Close() error
}

// DecisionStorage keeps a history of decisions.
type DecisionStorage interface {
	Store(ctx context.Context, d models.Decision) error
	StoreBatch(ctx context.Context, ds []models.Decision) error
	Health(ctx context.Context) error
	Close() error
}

// SnapshotStore publishes the latest streaming state for monitors.
type SnapshotStore interface {
	Save(ctx context.Context, s models.Snapshot) error
	Latest(ctx context.Context) (models.Snapshot, error)
}

type Metrics interface {
	RecordTick()
	RecordAction(action string)
	RecordEWMA(v float64)
	RecordLastPrice(price float64)
	RecordLatency(op string, seconds float64)
	RecordBatch(path, result string)
	RecordError(kind string)
}
