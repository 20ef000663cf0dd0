package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"OFISignal/internal/domain/models"
	domrepo "OFISignal/internal/domain/repository"
	pkgkafka "OFISignal/pkg/kafka"
	"OFISignal/pkg/util"
)

// TickConsumer is the part of the Kafka consumer the handler drives.
type TickConsumer interface {
	RegisterHandler(h pkgkafka.MessageHandler)
	Start() error
	Stop(ctx context.Context) error
}

// KafkaTicksHandler turns a Kafka ticks topic into a TickStream. Handle
// blocks until ingestion takes the tick, so a slow consumer applies
// backpressure to the topic instead of dropping ticks. Order is kept when
// the consumer runs a single worker.
type KafkaTicksHandler struct {
	topic    string
	consumer TickConsumer
	metrics  domrepo.Metrics
	ticks    chan models.Tick
	closing  chan struct{}
	now      func() time.Time

	mu        sync.Mutex
	started   bool
	connected atomic.Bool
}

func NewKafkaTicksHandler(topic string, consumer TickConsumer, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{
		topic:    topic,
		consumer: consumer,
		metrics:  metrics,
		ticks:    make(chan models.Tick, 1024),
		closing:  make(chan struct{}),
		now:      time.Now,
	}
}

var (
	_ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
	_ domrepo.TickStream      = (*KafkaTicksHandler)(nil)
)

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// Handle accepts one tick object per message, e.g.
// {"seq":1,"src_ts":1700000000.1,"price":100.5,"size":10}.
// A missing recv_ts is stamped on receipt.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var t models.Tick
	if err := json.Unmarshal(b, &t); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	if t.ReceiveTimestamp == 0 {
		t.ReceiveTimestamp = util.EpochSeconds(h.now())
	}
	select {
	case h.ticks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.closing:
		return context.Canceled
	}
}

// Connect registers the handler and starts the consumer once.
func (h *KafkaTicksHandler) Connect(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}
	h.consumer.RegisterHandler(h)
	if err := h.consumer.Start(); err != nil {
		return fmt.Errorf("start ticks consumer: %w", err)
	}
	h.started = true
	h.connected.Store(true)
	return nil
}

// Read returns the tick channel. The consumer reconnects on its own, so no
// stream error is ever reported.
func (h *KafkaTicksHandler) Read(_ context.Context) (<-chan models.Tick, <-chan error) {
	return h.ticks, make(chan error)
}

func (h *KafkaTicksHandler) Reconnect(ctx context.Context) error { return h.Connect(ctx) }

// Close stops the consumer. The handler cannot be restarted afterwards.
func (h *KafkaTicksHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return nil
	}
	h.started = false
	h.connected.Store(false)
	close(h.closing)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.consumer.Stop(ctx)
}

func (h *KafkaTicksHandler) IsConnected() bool { return h.connected.Load() }
