package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-sentinel/internal/api"
	"github.com/miradorstack/mirador-sentinel/internal/cache"
	"github.com/miradorstack/mirador-sentinel/internal/config"
	"github.com/miradorstack/mirador-sentinel/internal/detect"
	"github.com/miradorstack/mirador-sentinel/internal/metrics"
	"github.com/miradorstack/mirador-sentinel/internal/monitor"
	"github.com/miradorstack/mirador-sentinel/internal/repo"
	"github.com/miradorstack/mirador-sentinel/internal/respond"
	"github.com/miradorstack/mirador-sentinel/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-sentinel", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var valkeyCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			valkeyCloser = provider
		}
	}
	if valkeyCloser != nil {
		defer valkeyCloser.Close()
	}

	samples := repo.NewSamplesClient(
		cfg.Clients.Core.BaseURL,
		cfg.Clients.Core.SamplesPath,
		cfg.Clients.Core.Timeout,
		cacheProvider,
		cfg.Cache.SamplesTTL,
	)
	control := repo.NewControlClient(
		cfg.Clients.Core.BaseURL,
		cfg.Clients.Core.ControlPath,
		cfg.Clients.Core.Timeout,
	)
	if control.DryRun() {
		logger.Warn("no mirador-core base URL configured, response actions run in dry-run mode")
	}

	runtime := config.NewRuntime(cfg.Monitoring.ToMonitoring())
	clk := clock.New()

	responder := respond.NewEngine(logger, clk, runtime, []respond.Handler{
		respond.NewPerformanceHandler(control),
		respond.NewCostHandler(control),
		respond.NewErrorRecoveryHandler(control),
	})

	engine := monitor.NewEngine(
		logger,
		clk,
		runtime,
		samples,
		[]detect.Detector{
			detect.NewStatisticalDetector(),
			detect.NewThresholdDetector(),
			detect.NewCorrelationDetector(),
		},
		monitor.NewRateLimiter(clk),
		monitor.NewAlertLog(),
		responder,
	)

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))
	if cfg.Clients.Core.BaseURL != "" {
		health.AddReadinessCheck("mirador-core",
			healthcheck.HTTPGetCheck(cfg.Clients.Core.BaseURL+"/health", cfg.Clients.Core.Timeout))
	}

	handler := api.NewHandler(logger, engine, responder, runtime)
	server, err := api.NewServer(cfg.Server, handler.Routes(health, promhttp.Handler()))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.Monitoring.AutoStart {
		engine.Start()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("mirador-sentinel stopped")
}
