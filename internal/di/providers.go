package di

import (
	"context"
	"fmt"
	"time"

	"QuantDesk/internal/domain/repository"
	"QuantDesk/internal/handler/api"
	mid "QuantDesk/internal/middleware"
	internalrepo "QuantDesk/internal/repository"
	"QuantDesk/internal/service/feed"
	"QuantDesk/internal/services/forecast"
	"QuantDesk/internal/services/sim"
	"QuantDesk/internal/services/volatility"
	"QuantDesk/internal/usecase"
	pkgcache "QuantDesk/pkg/cache"
	pkgch "QuantDesk/pkg/clickhouse"
	"QuantDesk/pkg/config"
	xhttp "QuantDesk/pkg/http"
	pkgkafka "QuantDesk/pkg/kafka"
	applogger "QuantDesk/pkg/logger"
	"QuantDesk/pkg/metrics"
	"QuantDesk/pkg/server"
)

func barsTable(cfg *config.Config) string {
	return cfg.ClickHouse.Database + ".daily_bars"
}

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the
// daily bar schema exists.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := append(
		[]string{"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database},
		internalrepo.BarSchema(barsTable(cfg))...,
	)
	if err := client.InitSchema(ctx, stmts); err != nil {
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
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
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

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideBarStore creates the ClickHouse bar store. The concrete store
// serves both the write side (Storage) and the read side (HistoryStore).
func ProvideBarStore(chClient *pkgch.Client, cfg *config.Config) *internalrepo.ClickHouseBarStore {
	return internalrepo.NewClickHouseBarStore(chClient.DB(), barsTable(cfg))
}

// ProvideBarStorage exposes the bar store as the write port.
func ProvideBarStorage(store *internalrepo.ClickHouseBarStore) repository.Storage {
	return store
}

// ProvideHistoryStore exposes the bar store as the read port.
func ProvideHistoryStore(store *internalrepo.ClickHouseBarStore) repository.HistoryStore {
	return store
}

// ProvideBarPublisher creates the Kafka publisher repository.
func ProvideBarPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaBarPublisher(producer, cfg.Kafka.Topic)
}

// ProvideMarketStream creates the websocket feed with day rollup.
func ProvideMarketStream(cfg *config.Config, l *applogger.Logger) repository.MarketStream {
	return feed.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Feed.Symbols,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
		l,
	)
}

// ProvideBackfiller creates the REST candle backfiller.
func ProvideBackfiller(cfg *config.Config, l *applogger.Logger) *feed.Backfiller {
	return feed.NewBackfiller(cfg.Feed.APIKey, cfg.Feed.BackfillURL, nil, l)
}

// ProvideBarProcessor creates the bar processor use case.
func ProvideBarProcessor(
	pub repository.Publisher,
	store repository.Storage,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.BarProcessor {
	return usecase.NewBarProcessor(pub, store, metrics, cfg.Backend.Type)
}

// ProvideBarCollector creates the bar collector with the ingestion
// pipeline between the feed and the processor.
func ProvideBarCollector(
	stream repository.MarketStream,
	processor *usecase.BarProcessor,
	metrics repository.Metrics,
) *usecase.BarCollector {
	pipe := mid.NewIngestPipeline(processor, metrics,
		mid.WithBufferSize(2000),
	)
	return usecase.NewBarCollector(stream, processor, metrics, pipe)
}

// ProvideKafkaBarsHandler registers the handler for the bars topic.
func ProvideKafkaBarsHandler(store repository.Storage, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.Topic, store, metrics)
}

// ProvideCache creates the result cache. With Redis enabled the cache is
// layered (memory in front of Redis); a Redis that cannot be reached at
// startup degrades to memory-only rather than failing the boot.
func ProvideCache(cfg *config.Config, l *applogger.Logger) pkgcache.Service {
	if cfg.Cache.Redis.Enabled {
		rc, err := pkgcache.NewRedisCache(pkgcache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			l.Warn("redis unavailable, falling back to memory cache", applogger.Error(err))
			return pkgcache.NewMemoryCache(4096)
		}
		return pkgcache.NewLayeredCache(rc, 1024)
	}
	return pkgcache.NewMemoryCache(4096)
}

// ProvideRunComparator creates the saved-run comparator.
func ProvideRunComparator(cacheSvc pkgcache.Service, cfg *config.Config, l *applogger.Logger) *usecase.RunComparator {
	ttl := cfg.Cache.TTL.Runs
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return usecase.NewRunComparator(cacheSvc, ttl, l)
}

// ProvideForecastRunner assembles the computation chain: forecaster,
// calibrator, volatility models, simulator and optimizer.
func ProvideForecastRunner(
	history repository.HistoryStore,
	comparator *usecase.RunComparator,
	cacheSvc pkgcache.Service,
	metrics repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.ForecastRunner {
	simulator := sim.NewTrading212(l)
	ttl := cfg.Cache.TTL.Series
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return usecase.NewForecastRunner(
		history,
		forecast.NewEWMAForecaster(l),
		forecast.NewConformalCalibrator(),
		volatility.DefaultModels(),
		simulator,
		sim.NewOptimizer(simulator, l),
		comparator,
		cacheSvc,
		metrics,
		l,
		ttl,
	)
}

// ProvideEngineHandler creates the Echo handler for the engine API.
func ProvideEngineHandler(l *applogger.Logger, runner *usecase.ForecastRunner, comparator *usecase.RunComparator) xhttp.Handler {
	return api.NewEngineEchoHandler(l, runner, comparator)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.BarCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaBarsHandler,
	chClient *pkgch.Client,
	backfiller *feed.Backfiller,
	storage repository.Storage,
	cacheSvc pkgcache.Service,
	handler xhttp.Handler,
) *server.App {
	return server.New(cfg, l, collector, consumer, kh, chClient, backfiller, storage, cacheSvc, handler)
}
