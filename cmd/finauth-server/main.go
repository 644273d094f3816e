// Command finauth-server serves the finauth HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis_rate/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rfol/finauth"
	"github.com/rfol/finauth/internal/config"
	"github.com/rfol/finauth/internal/httpapi"
	"github.com/rfol/finauth/internal/telemetry"
	"github.com/rfol/finauth/internal/userstore"
	otelexport "github.com/rfol/finauth/metrics/export/otel"
	promexport "github.com/rfol/finauth/metrics/export/prometheus"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		slog.Error("finauth-server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	engineCfg, err := cfg.Engine()
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	db, err := userstore.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConnections)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := userstore.Migrate(ctx, db.DB); err != nil {
			return err
		}
	}

	engine, err := finauth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserProvider(userstore.New(db)).
		WithAuditSink(finauth.NewSlogAuditSink(logger)).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	report := engine.SecurityReport()
	logger.Info("engine ready",
		"hash", report.Hash.Algorithm,
		"access_ttl", report.AccessTTL,
		"session_ttl", report.SessionTTL,
		"login_throttle", report.LoginThrottleActive,
		"cookie_secure", report.CookieSecure,
	)

	opts := httpapi.Options{Logger: logger}
	if cfg.RateLimit.IPThrottle {
		opts.Limiter = redis_rate.NewLimiter(rdb)
		opts.PerIPPerMinute = cfg.RateLimit.PerIPPerMinute
	}

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			promexport.NewCollector(engine),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

		// No-op unless the embedding process installs a global MeterProvider.
		exp, err := otelexport.NewExporter(otel.Meter("github.com/rfol/finauth"), engine)
		if err != nil {
			return fmt.Errorf("otel exporter: %w", err)
		}
		defer exp.Close()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      httpapi.NewRouter(engine, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
