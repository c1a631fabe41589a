// Package main provides the entry point for the SectorIntel server.
// It collects threat intelligence, scores it and serves sector views over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/api"
	"github.com/lvonguyen/sectorintel/internal/api/gateway"
	"github.com/lvonguyen/sectorintel/internal/config"
	splunk "github.com/lvonguyen/sectorintel/internal/ingestion"
	"github.com/lvonguyen/sectorintel/internal/intel"
	"github.com/lvonguyen/sectorintel/internal/observability"
	"github.com/lvonguyen/sectorintel/internal/pipeline"
	"github.com/lvonguyen/sectorintel/internal/store"
)

// Version information (injected at build time via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (defaults when empty)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("SectorIntel %s (commit: %s, built: %s)\n", Version, GitCommit, BuildTime)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "sectorintel: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	tel, err := observability.New(observability.FromConfig(cfg, Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting SectorIntel",
		zap.String("version", Version),
		zap.String("commit", GitCommit),
		zap.String("config", configPath),
	)

	// Setup context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var redisClient *redis.Client
	if cfg.Store.Backend == "redis" || cfg.RateLimit.Enabled {
		redisClient = store.NewRedisClient(cfg.Redis)
	}

	st, err := store.Open(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	logger.Info("Run store initialized", zap.String("backend", cfg.Store.Backend))

	p, err := pipeline.FromConfig(cfg, pipeline.Options{
		Store:   st,
		Tracer:  tel.Tracer(),
		Logger:  logger,
		Metrics: tel.Metrics(),
	})
	if err != nil {
		return err
	}
	if reg := p.Feeds(); reg != nil {
		logger.Info("Feeds configured", zap.Strings("feeds", reg.Names()))
	}

	opts := api.Options{
		Pipeline:       p,
		Version:        Version,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
		Metrics:        tel.Metrics(),
	}
	if cfg.Telemetry.MetricsEnabled {
		opts.MetricsHandler = tel.MetricsHandler()
	}
	if cfg.RateLimit.Enabled {
		opts.Limiter = gateway.NewRateLimiter(redisClient, gateway.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			KeyPrefix:         cfg.Store.KeyPrefix,
			IncludeHeaders:    cfg.RateLimit.IncludeHeaders,
		}, logger)
	}
	if cfg.Splunk.Receiver.Enabled {
		opts.Receiver = splunk.NewHECReceiver(splunk.ReceiverConfig{
			TokenEnv:     cfg.Splunk.Receiver.TokenEnv,
			MaxEventSize: cfg.Splunk.Receiver.MaxEventSize,
		}, func(ctx context.Context, records []intel.RawThreatRecord) error {
			_, err := p.Run(ctx, records)
			return err
		}, logger, tel.Metrics())
		logger.Info("Splunk HEC receiver enabled")
	}

	srv, err := api.NewServer(opts)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}
