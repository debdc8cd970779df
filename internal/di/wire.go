//go:build wireinject
// +build wireinject

package di

import (
	"PowerDesk/pkg/config"
	"PowerDesk/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideLogger,
		ProvideClickHouseClient,
		ProvideKafkaConsumer,
		ProvideRedisCache,
		ProvideRedisClient,
		ProvideCache,

		// Metrics
		ProvideMetrics,
		ProvideEndpointMetrics,

		// Repositories
		ProvideDatasetStore,
		ProvideJobStore,
		ProvidePriceStorage,
		ProvidePricePublisher,
		ProvidePriceHistory,
		ProvideReportStore,
		ProvideReportPublisher,

		// Market data
		ProvideESOClient,
		ProvideMarketSource,
		ProvideMarketStream,

		// Assistant
		ProvideCompleter,
		ProvideAnalysisConfig,
		ProvideForecaster,
		ProvideExtractor,

		// Use cases
		ProvidePriceProcessor,
		ProvidePriceCollector,
		ProvideKafkaPricesHandler,
		ProvideKafkaReportsHandler,
		ProvideAssistant,
		ProvideIngestion,
		ProvideBriefing,
		ProvideMarketUseCase,
		ProvideQueue,
		ProvideJobs,
		ProvideContractWatch,
		ProvideLimiter,

		// Application server
		ProvideHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
