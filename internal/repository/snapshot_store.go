package repository

import (
	"context"
	"errors"
	"time"

	"OFISignal/internal/domain/models"
	"OFISignal/internal/domain/repository"
	"OFISignal/pkg/cache"
)

// ErrNoSnapshot is returned before the first snapshot has been saved, or
// after it expired.
var ErrNoSnapshot = errors.New("no snapshot available")

const snapshotKey = "ofi:snapshot:latest"

// CacheSnapshotStore keeps the latest snapshot in a cache under one key.
type CacheSnapshotStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewCacheSnapshotStore creates a snapshot store. ttl <= 0 keeps it forever.
func NewCacheSnapshotStore(c cache.Service, ttl time.Duration) repository.SnapshotStore {
	return &CacheSnapshotStore{cache: c, ttl: ttl}
}

func (s *CacheSnapshotStore) Save(ctx context.Context, snap models.Snapshot) error {
	return s.cache.Set(ctx, snapshotKey, snap, s.ttl)
}

func (s *CacheSnapshotStore) Latest(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := s.cache.Get(ctx, snapshotKey, &snap); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.Snapshot{}, ErrNoSnapshot
		}
		return models.Snapshot{}, err
	}
	return snap, nil
}
