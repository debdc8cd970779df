package di

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"PowerDesk/internal/domain/repository"
	domsvc "PowerDesk/internal/domain/service"
	"PowerDesk/internal/handler/api"
	mid "PowerDesk/internal/middleware"
	internalrepo "PowerDesk/internal/repository"
	"PowerDesk/internal/service/eso"
	"PowerDesk/internal/service/feed"
	svcmetrics "PowerDesk/internal/service/metrics"
	"PowerDesk/internal/service/ratelimit"
	"PowerDesk/internal/services/analysis"
	"PowerDesk/internal/usecase"
	"PowerDesk/pkg/cache"
	pkgch "PowerDesk/pkg/clickhouse"
	"PowerDesk/pkg/config"
	pkghttp "PowerDesk/pkg/http"
	pkgkafka "PowerDesk/pkg/kafka"
	"PowerDesk/pkg/llm"
	"PowerDesk/pkg/logger"
	"PowerDesk/pkg/metrics"
	"PowerDesk/pkg/queue"
	"PowerDesk/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// ErrLLMNotConfigured is returned by the placeholder completer used when no
// API key is set; analyses then fail as upstream errors.
var ErrLLMNotConfigured = errors.New("llm api key not configured")

// ProvideLogger builds the application logger and, when log.topic is set,
// attaches the error collector that publishes to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Output:  cfg.Log.Output,
		Service: "powerdesk",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Topic != "" && producer != nil {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   cfg.Log.FlushInterval,
			CountThreshold: cfg.Log.FlushCount,
			Topic:          cfg.Log.Topic,
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideClickHouseClient creates a ClickHouse client and applies the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer returns nil when kafka.consumer.enabled is false.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook(),
		pkgkafka.LoggingHook(log, time.Second),
	))
	return consumer, nil
}

// ProvideRedisCache connects to Redis.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

func ProvideRedisClient(rc *cache.RedisCache) *redis.Client {
	return rc.Client()
}

// ProvideCache fronts Redis with a small in-process LRU.
func ProvideCache(rc *cache.RedisCache) cache.Service {
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(1000),
		cache.WithLayeredMemoryTTL(time.Minute),
	)
}

func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

func ProvideEndpointMetrics() *svcmetrics.Endpoints {
	return svcmetrics.NewEndpoints(prometheus.DefaultRegisterer)
}

func ProvideDatasetStore(client *redis.Client, cfg *config.Config) repository.DatasetStore {
	return internalrepo.NewRedisDatasetStore(client, cfg.Redis.Prefix, cfg.Redis.DatasetTTL)
}

func ProvideJobStore(c cache.Service, cfg *config.Config) repository.JobStore {
	return internalrepo.NewCacheJobStore(c, cfg.Queue.JobTTL)
}

func ProvidePriceStorage(ch *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseStorage(ch, cfg.ClickHouse.Database)
}

func ProvidePricePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

func ProvidePriceHistory(ch *pkgch.Client, cfg *config.Config) repository.PriceHistory {
	return internalrepo.NewCHPriceHistory(ch, cfg.ClickHouse.Database)
}

func ProvideReportStore(ch *pkgch.Client, cfg *config.Config) repository.ReportStore {
	return internalrepo.NewCHReportStore(ch, cfg.ClickHouse.Database)
}

// ProvideReportPublisher returns nil without a reports topic, so reports are
// written to ClickHouse directly.
func ProvideReportPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ReportPublisher {
	if cfg.Kafka.ReportsTopic == "" {
		return nil
	}
	return internalrepo.NewKafkaReportPublisher(producer, cfg.Kafka.ReportsTopic)
}

func ProvideESOClient(cfg *config.Config) *eso.Client {
	return eso.New(cfg.Market.ESOURL, cfg.Market.ResourceID, cfg.Market.Limit,
		pkghttp.WithTimeout(15*time.Second),
		pkghttp.WithUserAgent("powerdesk/1.0"),
	)
}

func ProvideMarketSource(client *eso.Client, log *logger.Logger, m *metrics.Recorder) domsvc.MarketSource {
	return eso.NewSource(client, log, m)
}

// ProvideMarketStream uses the websocket feed when one is configured and
// polls the ESO dataset otherwise.
func ProvideMarketStream(cfg *config.Config, client *eso.Client, log *logger.Logger) repository.MarketStream {
	if cfg.Market.FeedURL != "" {
		return feed.NewWSStream(log,
			cfg.Market.FeedURL,
			cfg.Market.FeedAPIKey,
			cfg.Market.Regions,
			cfg.Market.ReconnectDelay,
			cfg.Market.PingInterval,
		)
	}
	return feed.NewPollingStream(log, client, cfg.Market.PollInterval)
}

func ProvidePriceProcessor(
	pub repository.Publisher,
	store repository.Storage,
	m *metrics.Recorder,
	cfg *config.Config,
) *usecase.PriceProcessor {
	return usecase.NewPriceProcessor(pub, store, m, cfg.Backend.Type, cfg.Backend.BatchSize)
}

// ProvidePriceCollector puts the rate limiting pipeline between the stream
// and the processor.
func ProvidePriceCollector(
	stream repository.MarketStream,
	processor *usecase.PriceProcessor,
	m *metrics.Recorder,
	cfg *config.Config,
	log *logger.Logger,
) *usecase.PriceCollector {
	pipe := mid.NewRealtimePipeline(processor, m,
		mid.WithMaxRPS(cfg.Market.MaxRPS),
		mid.WithBufferSize(cfg.Market.BufferSize),
	)
	return usecase.NewPriceCollector(stream, processor, m, pipe, log)
}

func ProvideKafkaPricesHandler(store repository.Storage, m *metrics.Recorder, cfg *config.Config) *usecase.KafkaPricesHandler {
	return usecase.NewKafkaPricesHandler(cfg.Kafka.Topic, store, m)
}

func ProvideKafkaReportsHandler(store repository.ReportStore, m *metrics.Recorder, cfg *config.Config) *usecase.KafkaReportsHandler {
	return usecase.NewKafkaReportsHandler(cfg.Kafka.ReportsTopic, store, m)
}

// ProvideCompleter builds the cached model client. Without an API key the
// service still starts; every analysis then fails as an upstream error.
func ProvideCompleter(cfg *config.Config, c cache.Service, m *metrics.Recorder, log *logger.Logger) (llm.Completer, error) {
	if cfg.LLM.APIKey == "" {
		log.Warn("no llm api key configured, analyses will fail", logger.String("provider", cfg.LLM.Provider))
		return llm.CompleterFunc(func(context.Context, llm.Request) (llm.Completion, error) {
			return llm.Completion{}, ErrLLMNotConfigured
		}), nil
	}
	base, err := llm.New(llm.Config{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		Endpoint:   cfg.LLM.Endpoint,
		APIVersion: cfg.LLM.APIVersion,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: 2,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	return llm.NewCachedCompleter(base, c, cfg.LLM.CacheTTL, cfg.LLM.Provider, cfg.LLM.Model, m), nil
}

func ProvideAnalysisConfig(cfg *config.Config) analysis.Config {
	return analysis.Config{
		DeviationThresholdPct: cfg.Analysis.DeviationThresholdPct,
		SettlementHours:       cfg.Analysis.SettlementHours,
		ImbalancePrice:        cfg.Analysis.ImbalancePrice,
		SpikeZScore:           cfg.Analysis.SpikeZScore,
		ForecastDays:          cfg.Analysis.ForecastDays,
		ForecastMinPrice:      cfg.Analysis.ForecastMinPrice,
		ForecastMaxPrice:      cfg.Analysis.ForecastMaxPrice,
	}
}

func ProvideForecaster(acfg analysis.Config) domsvc.PriceForecaster {
	return analysis.NewForecaster(acfg, rand.NewSource(time.Now().UnixNano()))
}

// ProvideExtractor asks the model for contract terms when enabled and falls
// back to the rule based extractor.
func ProvideExtractor(cfg *config.Config, completer llm.Completer, log *logger.Logger) domsvc.ContractExtractor {
	if cfg.Analysis.LLMExtraction {
		return analysis.NewLLMExtractor(completer, log)
	}
	return analysis.RuleExtractor{}
}

func ProvideAssistant(
	cfg *config.Config,
	acfg analysis.Config,
	datasets repository.DatasetStore,
	market domsvc.MarketSource,
	history repository.PriceHistory,
	forecaster domsvc.PriceForecaster,
	extractor domsvc.ContractExtractor,
	completer llm.Completer,
	publisher repository.ReportPublisher,
	reports repository.ReportStore,
	m *metrics.Recorder,
	log *logger.Logger,
) *usecase.AssistantUseCase {
	return usecase.NewAssistantUseCase(usecase.AssistantDeps{
		Datasets:   datasets,
		Market:     market,
		History:    history,
		Forecaster: forecaster,
		Extractor:  extractor,
		Completer:  completer,
		Publisher:  publisher,
		Reports:    reports,
		Metrics:    m,
		Log:        log,
	}, usecase.AssistantConfig{
		Analysis:     acfg,
		Timeout:      cfg.Analysis.Timeout,
		ForecastDays: cfg.Analysis.ForecastDays,
	})
}

// ProvideIngestion forwards extracted market prices through the price
// processor so uploads feed the stored history.
func ProvideIngestion(
	store repository.DatasetStore,
	processor *usecase.PriceProcessor,
	endpoints *svcmetrics.Endpoints,
	log *logger.Logger,
) *usecase.IngestionUseCase {
	return usecase.NewIngestionUseCase(store, processor, endpoints, log)
}

func ProvideBriefing(assistant *usecase.AssistantUseCase, cfg *config.Config) *usecase.BriefingUseCase {
	return usecase.NewBriefingUseCase(assistant, cfg.Analysis.Timeout)
}

func ProvideMarketUseCase(source domsvc.MarketSource, storage repository.Storage, history repository.PriceHistory) *usecase.MarketUseCase {
	return usecase.NewMarketUseCase(source, storage, history)
}

// ProvideQueue creates the Redis job queue and registers the analysis job.
func ProvideQueue(
	cfg *config.Config,
	client *redis.Client,
	assistant *usecase.AssistantUseCase,
	jobs repository.JobStore,
	log *logger.Logger,
) *queue.RedisQueue {
	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:      cfg.Queue.Workers,
		RetryLimit:   cfg.Queue.RetryLimit,
		RetryDelay:   cfg.Queue.RetryDelay,
		JobTimeout:   cfg.Analysis.Timeout,
		PollInterval: time.Second,
	}, client, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJob(usecase.NewAnalysisJob(assistant, jobs, log))
	return q
}

func ProvideJobs(q *queue.RedisQueue, store repository.JobStore, log *logger.Logger) *usecase.JobsUseCase {
	return usecase.NewJobsUseCase(q, store, log)
}

func ProvideContractWatch(store repository.DatasetStore, cfg *config.Config, log *logger.Logger) *usecase.ContractWatch {
	return usecase.NewContractWatch(store, cfg.Analysis.ContractCheckSchedule, log)
}

func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Analysis.RateLimit.Capacity, cfg.Analysis.RateLimit.RefillPerSec)
}

func ProvideHandler(
	cfg *config.Config,
	log *logger.Logger,
	ingestion *usecase.IngestionUseCase,
	assistant *usecase.AssistantUseCase,
	briefing *usecase.BriefingUseCase,
	jobs *usecase.JobsUseCase,
	market *usecase.MarketUseCase,
	watch *usecase.ContractWatch,
	limiter *ratelimit.Limiter,
	endpoints *svcmetrics.Endpoints,
) *api.AssistantHandler {
	return api.NewAssistantHandler(api.Deps{
		Logger:    log,
		Ingestion: ingestion,
		Assistant: assistant,
		Briefing:  briefing,
		Jobs:      jobs,
		Market:    market,
		Watch:     watch,
		Limiter:   limiter,
		Endpoints: endpoints,
		MaxUpload: cfg.Server.MaxUploadBytes,
	})
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	handler *api.AssistantHandler,
	collector *usecase.PriceCollector,
	consumer *pkgkafka.Consumer,
	prices *usecase.KafkaPricesHandler,
	reports *usecase.KafkaReportsHandler,
	q *queue.RedisQueue,
	watch *usecase.ContractWatch,
	limiter *ratelimit.Limiter,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	rc *cache.RedisCache,
) *server.App {
	return server.New(server.Components{
		Config:     cfg,
		Logger:     log,
		Handler:    handler,
		Collector:  collector,
		Consumer:   consumer,
		Handlers:   []pkgkafka.MessageHandler{prices, reports},
		Queue:      q,
		Watch:      watch,
		Limiter:    limiter,
		Producer:   producer,
		ClickHouse: chClient,
		Redis:      rc,
	})
}
