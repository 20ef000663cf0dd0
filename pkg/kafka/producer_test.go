package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	require.Error(t, err)
}

func TestPublishBatchEncodesValues(t *testing.T) {
	w := &captureWriter{}
	p := newProducer(w, "snappy")

	err := p.PublishBatch(context.Background(), "signals", []Message{
		{Key: []byte("a"), Value: map[string]int{"seq": 1}},
		{Value: "raw"},
		{Value: []byte("bytes")},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 3)

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	require.Equal(t, 1, decoded["seq"])
	require.Equal(t, "a", string(w.msgs[0].Key))
	require.Equal(t, "raw", string(w.msgs[1].Value))
	require.Equal(t, "bytes", string(w.msgs[2].Value))
	for _, m := range w.msgs {
		require.Equal(t, "signals", m.Topic)
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("broker down")
	p := newProducer(&captureWriter{err: boom}, "snappy")
	err := p.PublishMessage(context.Background(), "diag", []string{"x"})
	require.ErrorIs(t, err, boom)
}

func TestPublishRejectsUnencodable(t *testing.T) {
	p := newProducer(&captureWriter{}, "snappy")
	require.Error(t, p.Publish(context.Background(), "t", nil, make(chan int)))
}
