//go:build wireinject
// +build wireinject

package di

import (
	"OTCPulse/pkg/config"
	"OTCPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Repositories
		ProvideHistoryStore,
		ProvideActivityLog,
		ProvideTickPublisher,

		// Engine
		ProvideScheduler,
		ProvideRiskEngine,
		ProvideMarketEngine,
		ProvideFeedClient,

		// Use cases and HTTP surface
		ProvideBarsUseCase,
		ProvidePositionsUseCase,
		ProvidePositionEventsHandler,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
