package di

import (
	"context"
	"fmt"
	"time"

	"OTCPulse/internal/domain/repository"
	"OTCPulse/internal/engine"
	"OTCPulse/internal/engine/risk"
	"OTCPulse/internal/engine/schedule"
	"OTCPulse/internal/handler/api"
	internalrepo "OTCPulse/internal/repository"
	"OTCPulse/internal/service/feed"
	"OTCPulse/internal/usecase"
	pkgcache "OTCPulse/pkg/cache"
	pkgch "OTCPulse/pkg/clickhouse"
	"OTCPulse/pkg/config"
	xhttp "OTCPulse/pkg/http"
	pkgkafka "OTCPulse/pkg/kafka"
	"OTCPulse/pkg/logger"
	"OTCPulse/pkg/metrics"
	"OTCPulse/pkg/server"
)

// ProvideLogger builds the application logger from the environment name.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	l, err := logger.New(&logger.Config{Level: level, Format: format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates the ClickHouse client and prepares the
// schema the history store and activity log write into.
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

	if err := client.InitSchema(ctx, schemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// schemaStatements returns the DDL for the durable tables. Every
// numeric price_history column is Float64, volume included, so values
// never truncate on insert.
func schemaStatements(db string) []string {
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"CREATE TABLE IF NOT EXISTS " + db + `.price_history (
			instrument String,
			bucket DateTime,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			mode LowCardinality(String),
			variance Float64
		) ENGINE=MergeTree ORDER BY (instrument, bucket)`,
		"CREATE TABLE IF NOT EXISTS " + db + `.activity_log (
			ts DateTime64(3),
			instrument String,
			event LowCardinality(String),
			position_id String,
			value Float64,
			success UInt8
		) ENGINE=MergeTree ORDER BY (instrument, ts)`,
	}
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

// ProvideKafkaConsumer creates the position-events consumer.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
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
	return consumer, nil
}

// ProvideHistoryStore creates the durable candle store.
func ProvideHistoryStore(chClient *pkgch.Client, cfg *config.Config, l *logger.Logger) repository.HistoryStore {
	store := internalrepo.NewCHHistoryStore(chClient, cfg.ClickHouse.Database+".price_history")
	store.SetLogger(l)
	return store
}

// ProvideActivityLog creates the buffered audit log writer.
func ProvideActivityLog(chClient *pkgch.Client, cfg *config.Config, l *logger.Logger) repository.ActivityLog {
	return internalrepo.NewCHActivityLog(chClient, cfg.ClickHouse.Database+".activity_log", l)
}

// ProvideTickPublisher creates the Kafka tick/settlement publisher.
func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.TickPublisher {
	return internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.TicksTopic, cfg.Kafka.SettlementsTopic)
}

// ProvideScheduler builds the mode scheduler from the session config.
func ProvideScheduler(cfg *config.Config) (*schedule.Scheduler, error) {
	cal := schedule.DefaultCalendar()
	if cfg.Session.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Session.Timezone)
		if err != nil {
			return nil, fmt.Errorf("session timezone: %w", err)
		}
		cal.Location = loc
	}
	if cfg.Session.OpenHour != 0 || cfg.Session.OpenMinute != 0 {
		cal.OpenHour = cfg.Session.OpenHour
		cal.OpenMinute = cfg.Session.OpenMinute
	}
	if cfg.Session.CloseHour != 0 || cfg.Session.CloseMinute != 0 {
		cal.CloseHour = cfg.Session.CloseHour
		cal.CloseMinute = cfg.Session.CloseMinute
	}
	return schedule.New(cal), nil
}

// ProvideRiskEngine creates the exposure/intervention engine.
func ProvideRiskEngine(activity repository.ActivityLog, m repository.Metrics) *risk.Engine {
	return risk.New(activity, m, nil)
}

// ProvideMarketEngine assembles the orchestrator.
func ProvideMarketEngine(
	cfg *config.Config,
	sched *schedule.Scheduler,
	riskEngine *risk.Engine,
	store repository.HistoryStore,
	activity repository.ActivityLog,
	pub repository.TickPublisher,
	m repository.Metrics,
	l *logger.Logger,
) *engine.MarketEngine {
	return engine.New(engine.Config{
		TickInterval:         cfg.Engine.TickInterval,
		FlushInterval:        cfg.Engine.FlushInterval,
		CleanupInterval:      cfg.Engine.CleanupInterval,
		DiagnosticsInterval:  cfg.Engine.DiagnosticsInterval,
		RealPriceMinInterval: cfg.Engine.RealPriceMinInterval,
		SubscriberBuffer:     cfg.Engine.SubscriberBuffer,
		Instruments:          cfg.Instruments,
	}, sched, riskEngine, store, activity, pub, m, l)
}

// ProvideFeedClient creates the reference-price websocket client. Returns
// nil when the feed is disabled; fully synthetic deployments run without it.
func ProvideFeedClient(cfg *config.Config, eng *engine.MarketEngine, l *logger.Logger) *feed.Client {
	if !cfg.Feed.Enabled {
		return nil
	}
	return feed.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.FeedSymbols(),
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
		eng,
		l,
	)
}

// ProvideCache builds the bars response cache. Redis-backed when enabled,
// in-process otherwise.
func ProvideCache(cfg *config.Config) pkgcache.Service {
	if cfg.Redis.Enabled {
		rc, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisHost(cfg.Redis.Host),
			pkgcache.WithRedisPort(cfg.Redis.Port),
			pkgcache.WithRedisPassword(cfg.Redis.Password),
			pkgcache.WithRedisDB(cfg.Redis.DB),
		)
		if err == nil {
			return pkgcache.NewLayeredCache(rc)
		}
	}
	return pkgcache.NewMemoryCache()
}

// ProvideBarsUseCase creates the bars query use case.
func ProvideBarsUseCase(eng *engine.MarketEngine, c pkgcache.Service) *usecase.BarsUseCase {
	return usecase.NewBarsUseCase(eng, c)
}

// ProvidePositionsUseCase creates the position lifecycle use case.
func ProvidePositionsUseCase(eng *engine.MarketEngine) *usecase.PositionsUseCase {
	return usecase.NewPositionsUseCase(eng)
}

// ProvidePositionEventsHandler registers the handler for position-open events.
func ProvidePositionEventsHandler(cfg *config.Config, eng *engine.MarketEngine, m repository.Metrics) *usecase.PositionEventsHandler {
	return usecase.NewPositionEventsHandler(cfg.Kafka.PositionsTopic, eng, m)
}

// ProvideHTTPHandler builds the Echo route handler.
func ProvideHTTPHandler(l *logger.Logger, eng *engine.MarketEngine, bars *usecase.BarsUseCase, positions *usecase.PositionsUseCase) xhttp.Handler {
	return api.NewMarketEchoHandler(l, eng, bars, positions)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	eng *engine.MarketEngine,
	feedClient *feed.Client,
	producer *pkgkafka.Producer,
	consumer *pkgkafka.Consumer,
	ph *usecase.PositionEventsHandler,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	activity repository.ActivityLog,
	pub repository.TickPublisher,
) *server.App {
	// Aggregate repeated error/warn logs onto the event stream.
	if cfg.Kafka.LogsTopic != "" {
		l.AddCollector(&logger.CollectionConfig{
			Topic:     cfg.Kafka.LogsTopic,
			Publisher: producer,
		})
	}
	return server.New(cfg, l, eng, feedClient, consumer, ph, handler, chClient, activity, pub)
}
