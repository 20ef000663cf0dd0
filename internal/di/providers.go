package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"OFISignal/internal/domain/models"
	"OFISignal/internal/domain/repository"
	"OFISignal/internal/handler/api"
	mid "OFISignal/internal/middleware"
	internalrepo "OFISignal/internal/repository"
	svcmetrics "OFISignal/internal/service/metrics"
	"OFISignal/internal/service/udpfeed"
	"OFISignal/internal/service/wsfeed"
	"OFISignal/internal/services/accel"
	"OFISignal/internal/services/predictor"
	"OFISignal/internal/usecase"
	"OFISignal/pkg/cache"
	pkgch "OFISignal/pkg/clickhouse"
	"OFISignal/pkg/config"
	xhttp "OFISignal/pkg/http"
	pkgkafka "OFISignal/pkg/kafka"
	"OFISignal/pkg/logger"
	"OFISignal/pkg/metrics"
	"OFISignal/pkg/queue"
	"OFISignal/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideAccelProvider selects the accelerator backend.
func ProvideAccelProvider(cfg *config.Config) (accel.Provider, error) {
	return accel.NewProvider(cfg.Accelerator.Backend, cfg.Accelerator.Workers, cfg.Accelerator.MemoryBytes)
}

// ProvidePredictor creates the shared streaming/batch predictor.
func ProvidePredictor(cfg *config.Config, log *logger.Logger, prov accel.Provider) (*predictor.Predictor, error) {
	mode, err := models.ParseExecutionMode(cfg.Predictor.ExecutionMode)
	if err != nil {
		return nil, err
	}
	return predictor.New(cfg.Predictor.Alpha, cfg.Predictor.Threshold,
		predictor.WithLogger(log),
		predictor.WithProvider(prov),
		predictor.WithMode(mode),
	)
}

// ProvideKafkaProducer creates a Kafka producer when decisions or
// diagnostics go to Kafka. It attaches the diagnostics log collector.
func ProvideKafkaProducer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 || (!cfg.UsesKafkaSink() && cfg.Kafka.DiagnosticsTopic == "") {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Kafka.DiagnosticsTopic != "" {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.DiagnosticsTopic,
			Publisher:      producer,
		})
	}

	cleanup := func() {
		log.RemoveCollector()
		if err := producer.Close(); err != nil {
			log.Warn("kafka producer close error", logger.Error(err))
		}
	}
	return producer, cleanup, nil
}

// ProvideClickHouseClient creates a ClickHouse client and the decisions
// table when decisions are stored there.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.UsesClickHouseSink() {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.DecisionsSchema(decisionsTable(cfg))); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func decisionsTable(cfg *config.Config) string {
	return cfg.ClickHouse.Database + "." + pkgch.DecisionsTable
}

// ProvideRedisClient connects to Redis when enabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := cache.NewRedisClient(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideCache backs batch results and snapshots with Redis when available,
// otherwise with process memory.
func ProvideCache(rc *redis.Client) (cache.Service, func()) {
	if rc != nil {
		return cache.NewRedisCacheWithClient(rc, "ofi"), func() {}
	}
	mc := cache.NewMemoryCache()
	return mc, func() { _ = mc.Close() }
}

// ProvideSnapshotStore shares snapshots through Redis. Without Redis the
// API reads the in-process snapshot directly.
func ProvideSnapshotStore(cfg *config.Config, rc *redis.Client, c cache.Service) repository.SnapshotStore {
	if rc == nil {
		return nil
	}
	return internalrepo.NewCacheSnapshotStore(c, cfg.Redis.SnapshotTTL)
}

// ProvideBatchQueue creates the async batch queue; nil when disabled.
func ProvideBatchQueue(cfg *config.Config, log *logger.Logger, rc *redis.Client) queue.Queue {
	if cfg.Batch.QueueWorkers <= 0 {
		return nil
	}
	qc := &queue.QueueConfig{
		Workers:    cfg.Batch.QueueWorkers,
		RetryLimit: cfg.Batch.RetryLimit,
		RetryDelay: time.Second,
	}
	if rc != nil {
		return queue.NewRedisQueue(log, qc, rc)
	}
	return queue.NewMemoryQueue(log, qc)
}

// ProvideDecisionSink builds the decision fan-out from the sink backend.
func ProvideDecisionSink(cfg *config.Config, producer *pkgkafka.Producer, ch *pkgch.Client) *usecase.DecisionSink {
	var (
		pub   repository.DecisionPublisher
		store repository.DecisionStorage
	)
	if cfg.UsesKafkaSink() && producer != nil {
		pub = internalrepo.NewKafkaDecisionPublisher(producer, cfg.SignalsTopic())
	}
	if cfg.UsesClickHouseSink() && ch != nil {
		store = internalrepo.NewClickHouseDecisionStorage(ch.DB(), decisionsTable(cfg))
	}
	return usecase.NewDecisionSink(pub, store)
}

// ProvideDecisionPipeline buffers decisions between ingestion and the
// sinks; nil when no sink is configured.
func ProvideDecisionPipeline(cfg *config.Config, sink *usecase.DecisionSink, m repository.Metrics, log *logger.Logger) usecase.DecisionPipeline {
	if !sink.Enabled() {
		return nil
	}
	svcmetrics.Register()
	return mid.NewDecisionPipeline(sink, m,
		mid.WithBufferSize(cfg.Sink.BufferSize),
		mid.WithPipelineLogger(log),
		mid.WithHooks(
			func(n int) { svcmetrics.PipelineDepth.Set(float64(n)) },
			svcmetrics.PipelineDropped.Inc,
		),
	)
}

// ProvideTickStream selects the ingestion transport.
func ProvideTickStream(cfg *config.Config, log *logger.Logger, m repository.Metrics) (repository.TickStream, error) {
	switch cfg.Ingest.Source {
	case "udp":
		return udpfeed.New(cfg.Ingest.UDP.Host, cfg.Ingest.UDP.Port, cfg.Ingest.UDP.ReadBuffer, log, udpfeed.WithMetrics(m)), nil
	case "websocket":
		ws := cfg.Ingest.WebSocket
		return wsfeed.New(ws.URL, ws.ReconnectDelay, ws.PingInterval, log), nil
	case "kafka":
		consumer, err := ProvideKafkaConsumer(cfg, log)
		if err != nil {
			return nil, err
		}
		return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, consumer, m), nil
	default:
		return nil, fmt.Errorf("unknown ingest source %q", cfg.Ingest.Source)
	}
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML. One
// worker keeps ticks in partition order.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(1),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideTickProcessor creates the ingestion step.
func ProvideTickProcessor(pred *predictor.Predictor, m repository.Metrics, log *logger.Logger) *usecase.TickProcessor {
	return usecase.NewTickProcessor(pred, m, usecase.NewLatencyStats(0), log)
}

// ProvideTickCollector creates tick collector use case.
func ProvideTickCollector(
	cfg *config.Config,
	stream repository.TickStream,
	proc *usecase.TickProcessor,
	m repository.Metrics,
	pipe usecase.DecisionPipeline,
	snapshots repository.SnapshotStore,
	log *logger.Logger,
) *usecase.TickCollector {
	opts := []usecase.CollectorOption{
		usecase.WithCollectorLogger(log),
		usecase.WithReconnectDelay(cfg.Ingest.WebSocket.ReconnectDelay),
	}
	if pipe != nil {
		opts = append(opts, usecase.WithPipeline(pipe, cfg.Sink.EmitHold))
	}
	if snapshots != nil {
		opts = append(opts, usecase.WithSnapshots(snapshots, time.Second))
	}
	return usecase.NewTickCollector(stream, proc, m, opts...)
}

// ProvideBatchRunner creates the batch use case and registers its queue job.
func ProvideBatchRunner(
	cfg *config.Config,
	pred *predictor.Predictor,
	m repository.Metrics,
	log *logger.Logger,
	q queue.Queue,
	results cache.Service,
) *usecase.BatchRunner {
	runner := usecase.NewBatchRunner(pred, m, cfg.Batch.MaxElements, log)
	if q != nil {
		q.RegisterJob(usecase.NewBatchJob(runner, log))
		runner.EnableAsync(q, results, cfg.Batch.ResultTTL)
	}
	return runner
}

// ProvideSignalsHandler creates the HTTP API.
func ProvideSignalsHandler(
	cfg *config.Config,
	log *logger.Logger,
	pred *predictor.Predictor,
	runner *usecase.BatchRunner,
	proc *usecase.TickProcessor,
	snapshots repository.SnapshotStore,
) xhttp.Handler {
	h := api.NewSignalsEchoHandler(log, pred, runner, proc)
	h.SetBatchRateLimit(cfg.Batch.RateLimit)
	if snapshots != nil {
		h.SetSnapshotStore(snapshots)
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	pred *predictor.Predictor,
	collector *usecase.TickCollector,
	handler xhttp.Handler,
	q queue.Queue,
) *server.App {
	return server.New(cfg, log, pred, collector, handler, q)
}
