//go:build wireinject
// +build wireinject

package di

import (
	"QuantDesk/pkg/config"
	"QuantDesk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
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
		ProvideBarStore,
		ProvideBarStorage,
		ProvideHistoryStore,
		ProvideBarPublisher,
		ProvideMarketStream,
		ProvideBackfiller,

		// Use cases
		ProvideBarProcessor,
		ProvideBarCollector,
		ProvideKafkaBarsHandler,
		ProvideRunComparator,
		ProvideForecastRunner,

		// HTTP
		ProvideEngineHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
