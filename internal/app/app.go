package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/neogan74/tracelog/internal/auth"
	"github.com/neogan74/tracelog/internal/config"
	"github.com/neogan74/tracelog/internal/filesink"
	"github.com/neogan74/tracelog/internal/handlers"
	"github.com/neogan74/tracelog/internal/logger"
	"github.com/neogan74/tracelog/internal/metrics"
	"github.com/neogan74/tracelog/internal/middleware"
	"github.com/neogan74/tracelog/internal/pipeline"
	"github.com/neogan74/tracelog/internal/queue"
	"github.com/neogan74/tracelog/internal/ratelimit"
	"github.com/neogan74/tracelog/internal/redact"
	"github.com/neogan74/tracelog/internal/remote"
	"github.com/neogan74/tracelog/internal/severity"
)

// shutdownMargin is added to the queue grace for the HTTP server and
// store teardown.
const shutdownMargin = 5 * time.Second

// Builder wires tracelog application dependencies.
type Builder struct {
	cfg      *config.Config
	version  string
	logger   logger.Logger
	server   logger.Logger
	fiberApp *fiber.App

	sink        *remote.Sink
	pipeline    *pipeline.Pipeline
	poolMonitor *pipeline.PoolMonitor
	limiter     *ratelimit.Store
	watcher     *config.Watcher
	closers     []func()
}

// NewBuilder creates a new application builder.
func NewBuilder(cfg *config.Config, version string) *Builder {
	return &Builder{cfg: cfg, version: version}
}

// Build assembles the tracelog application components. The logging
// pipeline is running when Build returns.
func (b *Builder) Build(ctx context.Context) (*App, error) {
	b.initLogger()
	b.recordStartupMetrics()

	if err := b.initRemote(); err != nil {
		b.cleanupOnError()
		return nil, err
	}

	b.initPipeline()
	b.initFrameworkLogger()
	b.initFiber()
	b.initMiddleware()
	b.initHandlers()
	b.initPoolMonitor()

	if err := b.initWatcher(); err != nil {
		b.cleanupOnError()
		return nil, err
	}

	return &App{
		cfg:         b.cfg,
		version:     b.version,
		logger:      b.logger,
		server:      b.server,
		fiberApp:    b.fiberApp,
		pipeline:    b.pipeline,
		poolMonitor: b.poolMonitor,
		closers:     b.closers,
	}, nil
}

func (b *Builder) initLogger() {
	b.logger = logger.NewFromConfig(b.cfg.Log.Level, b.cfg.Log.Format)
	logger.SetDefault(b.logger)
}

func (b *Builder) recordStartupMetrics() {
	metrics.BuildInfo.WithLabelValues(b.version, runtime.Version()).Set(1)

	b.logger.Info("Starting tracelog",
		logger.String("version", b.version),
		logger.String("address", b.cfg.Address()),
		logger.String("log_level", b.cfg.Log.Level),
		logger.String("log_format", b.cfg.Log.Format),
		logger.Bool("file_enabled", b.cfg.File.Enabled),
		logger.Bool("remote_enabled", b.cfg.Remote.Enabled),
		logger.String("remote_type", b.cfg.Remote.Type),
	)
}

func (b *Builder) initRemote() error {
	if !b.cfg.Remote.Enabled {
		b.logger.Info("Remote log delivery disabled")
		return nil
	}

	store, err := remote.NewStore(remote.StoreConfig{
		Type:        b.cfg.Remote.Type,
		DSN:         b.cfg.Remote.DSN,
		AutoMigrate: b.cfg.Remote.AutoMigrate,
		RESTURL:     b.cfg.Remote.RESTURL,
		RESTKey:     b.cfg.Remote.RESTKey,
		BadgerDir:   b.cfg.Remote.BadgerDir,
	}, b.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize log store: %w", err)
	}

	b.sink = remote.NewSink(store, remote.SinkConfig{
		InsertTimeout: b.cfg.Remote.InsertTimeout,
	}, b.logger)
	b.addCloser(func() {
		if err := b.sink.Close(); err != nil {
			b.logger.Error("Failed to close log store", logger.Error(err))
		}
	})
	return nil
}

func (b *Builder) initPipeline() {
	files := filesink.NewSet(filesink.Config{
		Enabled:        b.cfg.File.Enabled,
		Dir:            b.cfg.File.Dir,
		SystemFile:     b.cfg.File.SystemFile,
		AppMaxBytes:    b.cfg.File.AppMaxBytes,
		AppBackups:     b.cfg.File.AppBackupCount,
		SystemMaxBytes: b.cfg.File.MaxBytes,
		SystemBackups:  b.cfg.File.BackupCount,
		Sync:           b.cfg.File.Sync,
	}, b.logger)

	b.pipeline = pipeline.New(pipeline.Config{
		AppLevel: b.cfg.AppLevel(),
		Queue: queue.Config{
			Capacity:  b.cfg.Remote.QueueSize,
			BatchSize: b.cfg.Remote.BatchSize,
			Interval:  b.cfg.Remote.BatchInterval,
		},
		Grace: b.cfg.Remote.ShutdownGrace,
	}, pipeline.Options{
		Files:    files,
		Redactor: redact.New(b.cfg.SensitiveFields, b.logger),
		Filter:   severity.New(b.cfg.RemoteLevels()),
		Sink:     b.sink,
		Logger:   b.logger,
	})
	b.pipeline.Start()
}

// initFrameworkLogger builds the logger for server lifecycle and request
// dispatch. It writes to standard error and, from INFO up, to the system
// stream.
func (b *Builder) initFrameworkLogger() {
	core := zapcore.NewTee(
		b.logger.Zap().Core(),
		pipeline.NewCore(b.pipeline, zapcore.InfoLevel),
	)
	b.server = logger.NewFromZap(zap.New(core, zap.AddCaller())).Named("tracelog.server")
}

func (b *Builder) initFiber() {
	b.fiberApp = fiber.New(fiber.Config{
		AppName:               "tracelog",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(b.pipeline),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
}

func (b *Builder) initMiddleware() {
	b.fiberApp.Use(middleware.Correlation())
	b.fiberApp.Use(recover.New(recover.Config{EnableStackTrace: b.cfg.Log.Debug}))
	b.fiberApp.Use(middleware.RequestLogging(b.server))
	b.fiberApp.Use(middleware.Performance(b.pipeline, b.cfg.HTTP.SlowRequest))

	if b.cfg.Auth.JWTSecret != "" {
		jwtService := auth.NewJWTService(b.cfg.Auth.JWTSecret, 0, b.cfg.Auth.Issuer)
		b.fiberApp.Use(middleware.Principal(jwtService))
		b.logger.Info("JWT principal extraction enabled")
	}
}

func (b *Builder) initHandlers() {
	healthHandler := handlers.NewHealthHandler(b.pipeline, b.version)
	b.fiberApp.Get("/health", healthHandler.Check)
	b.fiberApp.Get("/health/live", healthHandler.Liveness)
	b.fiberApp.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := b.fiberApp.Group("/api/v1")
	api.Get("/logging/stats", healthHandler.Stats)

	frontendHandler := handlers.NewFrontendHandler(b.pipeline, b.logger)
	if b.cfg.HTTP.FrontendRateLimit > 0 {
		b.limiter = ratelimit.NewStore(b.cfg.HTTP.FrontendRateLimit, 0, 0)
		b.addCloser(b.limiter.Close)
		api.Post("/exceptions/frontend", middleware.RateLimit(b.limiter), frontendHandler.Report)
		b.logger.Info("Frontend exception rate limiting enabled",
			logger.Int("requests_per_minute", b.cfg.HTTP.FrontendRateLimit))
	} else {
		api.Post("/exceptions/frontend", frontendHandler.Report)
	}
}

func (b *Builder) initPoolMonitor() {
	if b.sink == nil {
		return
	}
	pg, ok := b.sink.Store().(*remote.PostgresStore)
	if !ok {
		return
	}
	b.poolMonitor = pipeline.NewPoolMonitor(b.pipeline, pg, b.cfg.Remote.PoolMonitorInterval)
	b.poolMonitor.Start()
}

func (b *Builder) initWatcher() error {
	if b.cfg.OverlayFile == "" {
		return nil
	}

	b.watcher = config.NewWatcher(b.cfg, b.logger)
	b.watcher.OnChange(func(c *config.Config) {
		b.pipeline.Filter().Set(c.RemoteLevels())
		b.pipeline.SetAppLevel(c.AppLevel())
	})

	stop, err := b.watcher.Watch()
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", b.cfg.OverlayFile, err)
	}
	b.addCloser(stop)
	return nil
}

func (b *Builder) addCloser(closer func()) {
	b.closers = append(b.closers, closer)
}

func (b *Builder) cleanupOnError() {
	if b.pipeline != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownMargin)
		defer cancel()
		_ = b.pipeline.Shutdown(ctx)
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// App represents a configured tracelog application ready to run.
type App struct {
	cfg         *config.Config
	version     string
	logger      logger.Logger
	server      logger.Logger
	fiberApp    *fiber.App
	pipeline    *pipeline.Pipeline
	poolMonitor *pipeline.PoolMonitor
	closers     []func()
}

// Fiber exposes the HTTP application, mainly for mounting routes that use
// the audit decorator.
func (a *App) Fiber() *fiber.App { return a.fiberApp }

// Pipeline returns the logging facade.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Run starts the HTTP server and handles graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)

	go func() {
		serverErr <- a.fiberApp.Listen(a.cfg.Address())
	}()
	a.server.Info("Server started", logger.String("address", a.cfg.Address()), logger.String("version", a.version))

	select {
	case err := <-serverErr:
		if err != nil {
			a.server.Error("Failed to start server", logger.Error(err))
			a.teardown()
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.server.Info("Shutting down server...")
	shutdownErr := a.Shutdown()

	if err := <-serverErr; err != nil {
		return err
	}

	a.logger.Info("Server exited gracefully")
	return shutdownErr
}

// Shutdown stops accepting requests, then drains the logging pipeline and
// releases the store. Events logged by in-flight requests are still
// delivered within the configured grace.
func (a *App) Shutdown() error {
	timeout := a.cfg.Remote.ShutdownGrace + shutdownMargin
	if err := a.fiberApp.ShutdownWithTimeout(timeout); err != nil {
		a.logger.Error("Server forced to shutdown", logger.Error(err))
	}
	return a.teardown()
}

func (a *App) teardown() error {
	if a.poolMonitor != nil {
		a.poolMonitor.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Remote.ShutdownGrace+shutdownMargin)
	defer cancel()
	err := a.pipeline.Shutdown(ctx)
	if err != nil {
		a.logger.Error("Failed to close log files", logger.Error(err))
	}

	a.runClosers()
	_ = a.logger.Zap().Sync()
	return err
}

func (a *App) runClosers() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
