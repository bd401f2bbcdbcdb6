package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SOCPulse/internal/middleware"
	"SOCPulse/internal/service/broadcast"
	"SOCPulse/internal/service/ratelimit"
	"SOCPulse/internal/usecase"
	"SOCPulse/pkg/config"
	xhttp "SOCPulse/pkg/http"
	pkgkafka "SOCPulse/pkg/kafka"
	applogger "SOCPulse/pkg/logger"
	"SOCPulse/pkg/queue"
)

// Components are the long-running parts the App starts and stops.
// Optional parts are nil when disabled in config.
type Components struct {
	Handler   xhttp.Handler
	Incidents *usecase.IncidentService
	Anomalies *usecase.AnomalyService
	Pipeline  *middleware.AlertPipeline
	Hub       *broadcast.Hub
	Limiter   *ratelimit.Limiter
	Sampler   *usecase.Sampler
	Consumer  *pkgkafka.Consumer
	Alerts    *usecase.KafkaAlertsHandler
	Queue     *queue.RedisQueue
	Checks    xhttp.Checks
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	c          Components
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, logger *applogger.Logger, c Components) *App {
	if logger == nil {
		logger = applogger.NewNop()
	}
	return &App{cfg: cfg, logger: logger.Component("app"), c: c}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.Shutdown(context.Background())
}

// Start brings up models, workers, consumers and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Models.LoadOnBoot {
		a.loadModels(ctx)
	}

	a.c.Pipeline.Start(ctx)

	if a.c.Queue != nil {
		if err := a.c.Queue.Start(); err != nil {
			return err
		}
	}

	if a.c.Consumer != nil && a.c.Alerts != nil {
		a.c.Consumer.RegisterHandler(a.c.Alerts)
		go func() {
			if err := a.c.Consumer.Start(); err != nil {
				a.logger.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.logger.Info("kafka consumer started", applogger.String("topic", a.c.Alerts.Topic()))
	}

	if a.c.Sampler != nil {
		go a.c.Sampler.Run(ctx)
		a.logger.Info("metric sampler started", applogger.Duration("interval", a.cfg.Sampler.Interval))
	}

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	opts := []xhttp.ServerOption{
		xhttp.WithAddr(a.cfg.Server.Host, a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(a.cfg.Server.CORS),
		xhttp.WithLogger(a.logger),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithChecks(a.c.Checks),
	}
	if a.c.Limiter != nil {
		opts = append(opts, xhttp.WithMiddleware(a.c.Limiter.Middleware()))
	}
	a.httpServer = xhttp.NewServer(a.c.Handler, opts...)

	return a.httpServer.Start()
}

// loadModels restores persisted artifacts. Missing models are not an
// error; the classifier falls back until the first training run.
func (a *App) loadModels(ctx context.Context) {
	lctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ok, err := a.c.Incidents.LoadModel(lctx)
	if err != nil {
		a.logger.Warn("incident model load failed", applogger.Error(err))
	}
	loaded, err := a.c.Anomalies.LoadModels(lctx)
	if err != nil {
		a.logger.Warn("anomaly model load failed", applogger.Error(err))
	}
	a.logger.Info("models loaded",
		applogger.Bool("incident_model", ok),
		applogger.Int("anomaly_models", len(loaded)),
	)
}

// Shutdown gracefully stops all services. Infrastructure clients are
// closed by the caller's cleanup.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
		}
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(shutdownCtx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	a.c.Pipeline.Stop()
	if n := a.c.Pipeline.Buffered(); n > 0 {
		a.logger.Warn("alerts left in pipeline buffer", applogger.Int("count", n))
	}

	if a.c.Queue != nil {
		if err := a.c.Queue.Stop(shutdownCtx); err != nil {
			a.logger.Warn("queue stop error", applogger.Error(err))
		}
	}

	if a.c.Hub != nil {
		_ = a.c.Hub.Close()
	}

	a.logger.Info("shutdown complete")
	return nil
}
