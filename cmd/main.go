package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/tallyscore/internal/adapters/http/api"
	"github.com/okian/tallyscore/internal/adapters/http/site"
	"github.com/okian/tallyscore/internal/adapters/http/swagger"
	"github.com/okian/tallyscore/internal/adapters/repository"
	app "github.com/okian/tallyscore/internal/app"
	"github.com/okian/tallyscore/internal/config"
	"github.com/okian/tallyscore/internal/domain/identity"
	"github.com/okian/tallyscore/internal/domain/scoring"
	"github.com/okian/tallyscore/pkg/logger"
	"github.com/okian/tallyscore/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 30 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Only the custom registry is exposed.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return errors.New("failed to load config: " + err.Error())
	}

	if err := logger.InitWithOptions(logger.Options{Format: cfg.LogFormat}); err != nil {
		return errors.New("failed to initialize logging: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	if err := config.Watch(ctx, func(level string) {
		if err := logger.SetLevelString(level); err != nil {
			log.Warn(ctx, "ignoring reloaded log_level", logger.String("log_level", level), logger.Error(err))
			return
		}
		log.Info(ctx, "log level reloaded", logger.String("log_level", level))
	}); err != nil {
		log.Warn(ctx, "config watch disabled", logger.Error(err))
	}

	handler, svc, closeStore := newHandler(ctx, cfg, log)
	defer func() {
		if err := closeStore(); err != nil {
			log.Error(ctx, "store close failed", logger.Error(err))
		}
	}()

	go startMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store_driver", cfg.StoreDriver),
			logger.Bool("intake_allow_anonymous", cfg.IntakeAllowAnonymous),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return errors.New("HTTP server failed: " + err.Error())
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newHandler wires the store, service and routes described by cfg. The
// returned func closes the store.
func newHandler(ctx context.Context, cfg *config.Config, log logger.Logger) (http.Handler, *app.Service, func() error) {
	// The /metrics handler below serves whatever registry this installs.
	metrics.Configure(
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithMetricsEnabled(cfg.MetricsEnabled),
	)

	// The backend opens on first use.
	store := repository.NewClientFromConfig(repository.Config{
		Driver:     cfg.StoreDriver,
		URL:        cfg.StoreURL,
		ServiceKey: cfg.ServiceKey,
		SQLitePath: cfg.SQLitePath,
		Timeout:    cfg.RequestTimeout(),
		SeedUsers:  cfg.SQLiteSeedUsers,
	})

	resolver := identity.NewResolver(store,
		identity.WithPageSize(cfg.DirectoryPageSize),
		identity.WithMaxPages(cfg.DirectoryMaxPages),
	)
	svc := app.New(store, resolver,
		app.WithLogger(log.Named("service")),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithIntakeAllowAnonymous(cfg.IntakeAllowAnonymous),
		app.WithCalculator(scoring.NewCalculator(scoring.WithLowQualityPhrases(cfg.LowQualityPhrases))),
	)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return mux, svc, store.Close
}

// startMetricsUpdater refreshes runtime and dedupe gauges until ctx is done.
func startMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateMetrics(svc)
		}
	}
}

func updateMetrics(svc *app.Service) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	metrics.UpdateDedupeEntries(svc.Size())
}
