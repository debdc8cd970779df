package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PowerDesk/internal/service/ratelimit"
	"PowerDesk/internal/usecase"
	"PowerDesk/pkg/cache"
	pkgch "PowerDesk/pkg/clickhouse"
	"PowerDesk/pkg/config"
	xhttp "PowerDesk/pkg/http"
	pkgkafka "PowerDesk/pkg/kafka"
	"PowerDesk/pkg/logger"
	"PowerDesk/pkg/queue"
)

const limiterIdle = 10 * time.Minute

// Components are the long running parts the App starts and stops. Consumer
// may be nil.
type Components struct {
	Config     *config.Config
	Logger     *logger.Logger
	Handler    xhttp.Handler
	Collector  *usecase.PriceCollector
	Consumer   *pkgkafka.Consumer
	Handlers   []pkgkafka.MessageHandler
	Queue      *queue.RedisQueue
	Watch      *usecase.ContractWatch
	Limiter    *ratelimit.Limiter
	Producer   *pkgkafka.Producer
	ClickHouse *pkgch.Client
	Redis      *cache.RedisCache
}

// App encapsulates the entire application lifecycle.
type App struct {
	Components
	httpServer *xhttp.Server
}

func New(c Components) *App {
	return &App{Components: c}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.start(ctx); err != nil {
		_ = a.shutdown(context.Background())
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.Logger.Info("shutdown signal received")
	cancel()
	return a.shutdown(context.Background())
}

func (a *App) start(ctx context.Context) error {
	cfg := a.Config
	l := a.Logger

	if a.Collector != nil {
		go func() {
			if err := a.Collector.Start(ctx); err != nil {
				l.Error("collector error", logger.Error(err))
			}
		}()
		l.Info("price collector started", logger.String("backend", cfg.Backend.Type))
	}

	if a.Consumer != nil {
		for _, h := range a.Handlers {
			if h.Topic() == "" {
				continue
			}
			a.Consumer.RegisterHandler(h)
			l.Info("kafka handler registered", logger.String("topic", h.Topic()))
		}
		go func() {
			if err := a.Consumer.Start(); err != nil {
				l.Error("kafka consumer error", logger.Error(err))
			}
		}()
	}

	if a.Queue != nil {
		if err := a.Queue.Start(); err != nil {
			return err
		}
	}
	if a.Watch != nil {
		if err := a.Watch.Start(); err != nil {
			return err
		}
	}
	if a.Limiter != nil {
		go a.sweepLimiter(ctx)
	}

	a.httpServer = xhttp.NewServer(l, a.Handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithBodyLimit(cfg.Server.MaxUploadBytes*6),
		xhttp.WithMetrics(cfg.Metrics.Enabled),
		xhttp.WithCORS(true),
	)
	return a.httpServer.Start()
}

// sweepLimiter drops idle client buckets.
func (a *App) sweepLimiter(ctx context.Context) {
	t := time.NewTicker(limiterIdle)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.Limiter.Sweep(limiterIdle); n > 0 {
				a.Logger.Debug("rate limiter swept", logger.Int("clients", n))
			}
		}
	}
}

// shutdown stops intake first, then workers, then closes clients.
func (a *App) shutdown(ctx context.Context) error {
	l := a.Logger
	l.Info("shutting down...")

	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			l.Error("http shutdown error", logger.Error(err))
		}
	}

	if a.Collector != nil {
		if err := a.Collector.Shutdown(ctx); err != nil {
			l.Warn("collector stop error", logger.Error(err))
		}
	}

	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", logger.Error(err))
		}
	}

	if a.Queue != nil {
		if err := a.Queue.Stop(ctx); err != nil {
			l.Warn("job queue stop error", logger.Error(err))
		}
	}

	if a.Watch != nil {
		if err := a.Watch.Stop(ctx); err != nil {
			l.Warn("contract watch stop error", logger.Error(err))
		}
	}

	if a.Collector != nil {
		a.Collector.Processor().Close()
	}
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			l.Warn("kafka producer close error", logger.Error(err))
		}
	}

	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			l.Warn("clickhouse close error", logger.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			l.Warn("redis close error", logger.Error(err))
		}
	}

	l.Info("shutdown complete")
	l.RemoveCollector()
	return nil
}
