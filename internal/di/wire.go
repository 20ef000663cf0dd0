//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"OFISignal/pkg/config"
	"OFISignal/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Core
		ProvideLogger,
		ProvideMetrics,
		ProvideAccelProvider,
		ProvidePredictor,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideRedisClient,
		ProvideCache,
		ProvideBatchQueue,

		// Repositories
		ProvideSnapshotStore,
		ProvideDecisionSink,
		ProvideTickStream,

		// Use cases
		ProvideDecisionPipeline,
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideBatchRunner,

		// HTTP
		ProvideSignalsHandler,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
