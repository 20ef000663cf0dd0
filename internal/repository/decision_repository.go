package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"OFISignal/internal/domain/models"
	"OFISignal/internal/domain/repository"
	pkgkafka "OFISignal/pkg/kafka"
	"OFISignal/pkg/util"
)

const (
	insertChunk   = 2000
	decisionCols  = "(ts, seq, action, ewma, ofi, price, src_ts, recv_ts, decision_us, transport_us)"
	decisionTuple = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
)

// ClickHouseDecisionStorage implements DecisionStorage for ClickHouse.
type ClickHouseDecisionStorage struct {
	db    *sql.DB
	table string
}

// NewClickHouseDecisionStorage creates ClickHouse storage.
func NewClickHouseDecisionStorage(db *sql.DB, table string) repository.DecisionStorage {
	return &ClickHouseDecisionStorage{db: db, table: table}
}

func (s *ClickHouseDecisionStorage) Store(ctx context.Context, d models.Decision) error {
	return s.StoreBatch(ctx, []models.Decision{d})
}

// StoreBatch inserts in multi-row VALUES chunks to reduce round-trips.
func (s *ClickHouseDecisionStorage) StoreBatch(ctx context.Context, ds []models.Decision) error {
	for start := 0; start < len(ds); start += insertChunk {
		end := start + insertChunk
		if end > len(ds) {
			end = len(ds)
		}
		q, args := buildInsert(s.table, ds[start:end])
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %d decisions: %w", end-start, err)
		}
	}
	return nil
}

func buildInsert(table string, ds []models.Decision) (string, []interface{}) {
	values := make([]string, 0, len(ds))
	args := make([]interface{}, 0, len(ds)*10)
	for _, d := range ds {
		values = append(values, decisionTuple)
		args = append(args,
			util.FromEpoch(d.ReceiveTimestamp),
			d.Sequence,
			int8(d.Action),
			d.EWMA,
			d.OFI,
			d.Price,
			d.SourceTimestamp,
			d.ReceiveTimestamp,
			d.DecisionMicros,
			d.TransportMicros,
		)
	}
	q := fmt.Sprintf("INSERT INTO %s %s VALUES %s", table, decisionCols, strings.Join(values, ","))
	return q, args
}

func (s *ClickHouseDecisionStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseDecisionStorage) Close() error {
	return nil // Managed by pkg
}

// BatchPublisher is the producer surface the publisher needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaDecisionPublisher implements DecisionPublisher for Kafka. Messages
// are keyed by sequence number.
type KafkaDecisionPublisher struct {
	producer BatchPublisher
	topic    string
}

// NewKafkaDecisionPublisher creates Kafka publisher.
func NewKafkaDecisionPublisher(producer BatchPublisher, topic string) repository.DecisionPublisher {
	return &KafkaDecisionPublisher{producer: producer, topic: topic}
}

func (p *KafkaDecisionPublisher) Publish(ctx context.Context, d models.Decision) error {
	return p.PublishBatch(ctx, []models.Decision{d})
}

func (p *KafkaDecisionPublisher) PublishBatch(ctx context.Context, ds []models.Decision) error {
	if len(ds) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ds))
	for i, d := range ds {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(strconv.FormatUint(d.Sequence, 10)),
			Value: d,
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaDecisionPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
