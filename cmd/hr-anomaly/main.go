package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claudia-liauw/health-app/internal/api"
	"github.com/claudia-liauw/health-app/internal/cache"
	"github.com/claudia-liauw/health-app/internal/config"
	"github.com/claudia-liauw/health-app/internal/engine"
	"github.com/claudia-liauw/health-app/internal/metrics"
	"github.com/claudia-liauw/health-app/internal/model"
	"github.com/claudia-liauw/health-app/internal/queue"
	"github.com/claudia-liauw/health-app/internal/repo"
	"github.com/claudia-liauw/health-app/internal/services"
	"github.com/claudia-liauw/health-app/internal/utils"
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
	logger.Info("starting hr-anomaly", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconstructor, err := model.FromConfig(ctx, logger, cfg.Model)
	if err != nil {
		logger.Error("failed to build reconstruction model", slog.Any("error", err))
		os.Exit(1)
	}

	pipelineCfg, err := engine.ConfigFromSettings(cfg.Detection)
	if err != nil {
		logger.Error("invalid detection settings", slog.Any("error", err))
		os.Exit(1)
	}
	pipeline := engine.NewPipeline(logger, reconstructor, pipelineCfg)

	store, err := repo.OpenReadingStore(ctx, logger, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		logger.Error("failed to open reading store", slog.String("driver", cfg.Store.Driver), slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		logger.Error("failed to initialise reading store", slog.Any("error", err))
		os.Exit(1)
	}

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.NATS.Enabled {
		natsPublisher, err := queue.NewNATSPublisher(ctx, logger, queue.Config{
			URL:           cfg.NATS.URL,
			Stream:        cfg.NATS.Stream,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Timeout:       cfg.NATS.Timeout,
		})
		if err != nil {
			logger.Warn("nats publisher unavailable", slog.Any("error", err))
		} else {
			publisher = natsPublisher
		}
	}
	defer publisher.Close()

	detectionService := services.NewDetectionService(logger, pipeline, store, publisher)
	reports, err := cache.Open(ctx, logger, cfg.Cache)
	if err != nil {
		logger.Warn("report cache unavailable; continuing without cache", slog.Any("error", err))
	} else if reports != nil {
		defer reports.Close()
		detectionService.WithReportCache(reports)
	}

	server, err := api.NewServer(cfg.Server, api.NewHandler(detectionService))
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("hr-anomaly stopped", slog.Duration("p95_detection", detectionService.LatencyP95()))
}
