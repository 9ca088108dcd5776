// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/shopstyle/internal/api"
	"github.com/JakeFAU/shopstyle/internal/browser"
	"github.com/JakeFAU/shopstyle/internal/config"
	"github.com/JakeFAU/shopstyle/internal/logging"
	"github.com/JakeFAU/shopstyle/internal/metrics"
	"github.com/JakeFAU/shopstyle/internal/scraper"
	"github.com/JakeFAU/shopstyle/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg            *config.Config
	logger         *zap.Logger
	scraper        *scraper.Scraper
	apiServer      *api.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Define a struct for logging only non-sensitive config fields
	type SanitizedConfig struct {
		ServerPort  int    `json:"server_port"`
		Engine      string `json:"engine"`
		MaxParallel int    `json:"max_parallel"`
	}
	safeCfg := SanitizedConfig{
		ServerPort:  cfg.Server.Port,
		Engine:      cfg.Browser.Engine,
		MaxParallel: cfg.Browser.MaxParallel,
	}
	logger.Info("Creating application", zap.Any("config", safeCfg))
	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	tp, err := initTracing(ctx, cfg.Telemetry, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	metrics.Init()

	app.logger.Info("building application dependencies")
	app.scraper, err = NewScraper(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.apiServer = api.NewServer(app.scraper, logger.Named("api"))

	return app, nil
}

func initTracing(ctx context.Context, cfg config.TelemetryConfig, w io.Writer) (*sdktrace.TracerProvider, error) {
	var opts []sdktrace.TracerProviderOption
	exp, err := telemetry.NewExporter(cfg.Exporter, w)
	if err != nil {
		return nil, err
	}
	if exp != nil {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	tp, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.TracingEnabled, opts...)
	if err != nil {
		return nil, fmt.Errorf("init tracer provider: %w", err)
	}
	return tp, nil
}

// NewScraper wires a browser Loader and Scraper from configuration.
func NewScraper(cfg *config.Config, logger *zap.Logger) (*scraper.Scraper, error) {
	loader, err := browser.New(cfg.BrowserOptions(), logger.Named("browser"))
	if err != nil {
		return nil, fmt.Errorf("browser loader init failed: %w", err)
	}
	return scraper.New(loader, logger.Named("scraper"),
		scraper.WithMaxParallel(cfg.Browser.MaxParallel),
		scraper.WithTracer(telemetry.Tracer()),
	), nil
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Scraper returns the configured scraper.
func (a *App) Scraper() *scraper.Scraper {
	return a.scraper
}

// Run starts the application and blocks until the context is canceled or a
// termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve handles HTTP on ln until ctx is done, then shuts down gracefully.
// Requests still running when the shutdown timeout expires are canceled so
// their browsers are torn down.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.logger.Info("application started")
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout(),
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			a.logger.Error("http server error", zap.Error(err))
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
		cancelBase()
	}

	if err := a.Close(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
