package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"OFISignal/internal/domain/models"
	"OFISignal/pkg/cache"
	pkgkafka "OFISignal/pkg/kafka"
)

func TestBuildInsert(t *testing.T) {
	ds := []models.Decision{
		{Sequence: 1, Action: models.ActionBuy, EWMA: 45, ReceiveTimestamp: 1700000000.5},
		{Sequence: 2, Action: models.ActionSell, EWMA: -41},
	}
	q, args := buildInsert("db.ofi_decisions", ds)
	require.True(t, strings.HasPrefix(q, "INSERT INTO db.ofi_decisions (ts, seq, action,"))
	require.Equal(t, 2, strings.Count(q, decisionTuple))
	require.Len(t, args, 20)

	ts, ok := args[0].(time.Time)
	require.True(t, ok)
	require.Equal(t, int64(1700000000500), ts.UnixMilli())
	require.Equal(t, int8(1), args[2])
	require.Equal(t, int8(-1), args[12])
}

type capturePublisher struct {
	topic  string
	msgs   []pkgkafka.Message
	closed bool
}

func (c *capturePublisher) PublishBatch(_ context.Context, topic string, m []pkgkafka.Message) error {
	c.topic = topic
	c.msgs = append(c.msgs, m...)
	return nil
}

func (c *capturePublisher) Close() error { c.closed = true; return nil }

func TestKafkaDecisionPublisherKeysBySequence(t *testing.T) {
	cp := &capturePublisher{}
	pub := NewKafkaDecisionPublisher(cp, "ofi.signals")

	require.NoError(t, pub.Publish(context.Background(), models.Decision{Sequence: 42, Action: models.ActionSell}))
	require.NoError(t, pub.PublishBatch(context.Background(), nil))
	require.Equal(t, "ofi.signals", cp.topic)
	require.Len(t, cp.msgs, 1)
	require.Equal(t, "42", string(cp.msgs[0].Key))

	b, err := json.Marshal(cp.msgs[0].Value)
	require.NoError(t, err)
	require.Contains(t, string(b), `"action":"SELL"`)

	require.NoError(t, pub.Close())
	require.True(t, cp.closed)
}

func TestCacheSnapshotStore(t *testing.T) {
	c := cache.NewMemoryCache()
	defer c.Close()
	store := NewCacheSnapshotStore(c, time.Minute)
	ctx := context.Background()

	_, err := store.Latest(ctx)
	require.True(t, errors.Is(err, ErrNoSnapshot))

	want := models.Snapshot{Sequence: 7, EWMA: 12.5, Action: "HOLD", Price: 100, UpdatedAt: 1}
	require.NoError(t, store.Save(ctx, want))
	got, err := store.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
