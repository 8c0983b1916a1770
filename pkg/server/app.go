package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OTCPulse/internal/domain/repository"
	"OTCPulse/internal/engine"
	"OTCPulse/internal/service/feed"
	"OTCPulse/internal/usecase"
	pkgch "OTCPulse/pkg/clickhouse"
	"OTCPulse/pkg/config"
	xhttp "OTCPulse/pkg/http"
	pkgkafka "OTCPulse/pkg/kafka"
	applogger "OTCPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	eng        *engine.MarketEngine
	feedClient *feed.Client
	consumer   *pkgkafka.Consumer
	ph         *usecase.PositionEventsHandler
	handler    xhttp.Handler
	chClient   *pkgch.Client
	activity   repository.ActivityLog
	pub        repository.TickPublisher
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	eng *engine.MarketEngine,
	feedClient *feed.Client,
	consumer *pkgkafka.Consumer,
	ph *usecase.PositionEventsHandler,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	activity repository.ActivityLog,
	pub repository.TickPublisher,
) *App {
	return &App{
		cfg:        cfg,
		l:          l,
		eng:        eng,
		feedClient: feedClient,
		consumer:   consumer,
		ph:         ph,
		handler:    handler,
		chClient:   chClient,
		activity:   activity,
		pub:        pub,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed instruments from durable history before anything ticks.
	if err := a.eng.Initialize(ctx); err != nil {
		a.l.Error("engine initialization failed", applogger.Error(err))
		return err
	}
	a.eng.Start()

	// Reference price feed is optional; fully synthetic deployments skip it.
	if a.feedClient != nil {
		go func() {
			if err := a.feedClient.Start(ctx); err != nil {
				a.l.Error("reference feed error", applogger.Error(err))
			}
		}()
		a.l.Info("reference feed started", applogger.Strings("symbols", a.cfg.FeedSymbols()))
	}

	// Position-open events arrive over Kafka.
	if a.consumer != nil && a.ph != nil {
		a.consumer.RegisterHandler(a.ph)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.ph.Topic()))
	}

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(a.l, 500*time.Millisecond),
	)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("serving", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops the engine first so no writer outlives its sinks, then
// tears down transports and storage.
func (a *App) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.eng.Stop(shutdownCtx)

	if a.feedClient != nil {
		if err := a.feedClient.Stop(); err != nil {
			a.l.Warn("reference feed stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	// Flush aggregated logs while the producer is still open.
	a.l.RemoveCollector()

	if err := a.pub.Close(); err != nil {
		a.l.Warn("publisher close error", applogger.Error(err))
	}
	if err := a.activity.Close(); err != nil {
		a.l.Warn("activity log close error", applogger.Error(err))
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
