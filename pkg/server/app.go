package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	drepo "QuantDesk/internal/domain/repository"
	"QuantDesk/internal/service/feed"
	"QuantDesk/internal/usecase"
	pkgcache "QuantDesk/pkg/cache"
	pkgch "QuantDesk/pkg/clickhouse"
	"QuantDesk/pkg/config"
	xhttp "QuantDesk/pkg/http"
	pkgkafka "QuantDesk/pkg/kafka"
	applogger "QuantDesk/pkg/logger"
)

// App encapsulates the application lifecycle: seed history, start the
// feed collector, the Kafka consumer (when the backend is kafka) and the
// HTTP API, then block until a shutdown signal.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	collector  *usecase.BarCollector
	consumer   *pkgkafka.Consumer
	kh         pkgkafka.MessageHandler
	chClient   *pkgch.Client
	backfiller *feed.Backfiller
	storage    drepo.Storage
	cache      pkgcache.Service
	handler    xhttp.Handler
	httpServer *xhttp.Server
}

func New(
	cfg *config.Config,
	l *applogger.Logger,
	collector *usecase.BarCollector,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	backfiller *feed.Backfiller,
	storage drepo.Storage,
	cache pkgcache.Service,
	handler xhttp.Handler,
) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{
		cfg:        cfg,
		l:          l,
		collector:  collector,
		consumer:   consumer,
		kh:         kh,
		chClient:   chClient,
		backfiller: backfiller,
		storage:    storage,
		cache:      cache,
		handler:    handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.seedHistory(ctx)

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.l),
	)

	if a.collector != nil {
		go func() {
			if err := a.collector.Start(ctx); err != nil {
				a.l.Error("collector error", applogger.Error(err))
			}
		}()
		a.l.Info("collector started", applogger.Strings("symbols", a.cfg.Feed.Symbols))
	}

	if a.cfg.Backend.Type == "kafka" && a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.l.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// seedHistory backfills daily candles for each configured symbol so the
// engine has a usable history before the live feed contributes its first
// rolled-up bar.
func (a *App) seedHistory(ctx context.Context) {
	if a.backfiller == nil || a.storage == nil || a.cfg.Feed.BackfillURL == "" {
		return
	}
	to := time.Now().UTC()
	from := to.AddDate(-2, 0, 0)
	for _, sym := range a.cfg.Feed.Symbols {
		bars, err := a.backfiller.DailyBars(ctx, sym, from, to)
		if err != nil {
			a.l.Warn("backfill failed", applogger.String("symbol", sym), applogger.Error(err))
			continue
		}
		if err := a.storage.StoreBatch(ctx, bars); err != nil {
			a.l.Warn("backfill store failed", applogger.String("symbol", sym), applogger.Error(err))
		}
	}
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.l.Warn("collector stop error", applogger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.collector != nil && a.collector.Processor() != nil {
		a.collector.Processor().Close()
	}

	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.l.Warn("cache close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
