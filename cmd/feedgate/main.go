// Package main is the entry point for the feedgate introspection server.
// It loads provider configuration, builds the orchestration client, starts
// the background refresh scheduler, and serves read-only stats endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/apexsports/feedgate"
	"github.com/apexsports/feedgate/internal/config"
	"github.com/apexsports/feedgate/internal/observability"
	"github.com/apexsports/feedgate/internal/sched"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfgManager, err := config.NewManager(*configPath, bootLogger)
	if err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)
	logger.Info("starting feedgate", "version", "0.1.0")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := []feedgate.Option{
		feedgate.WithLogger(logger),
		feedgate.WithKeyValidation(10 * time.Minute),
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		opts = append(opts, feedgate.WithRedis(rdb))
		logger.Info("shared rate-limit windows enabled", "addr", cfg.Redis.Addr)
	}

	client, err := feedgate.New(cfg, opts...)
	if err != nil {
		logger.Error("failed to build client", "error", err)
		os.Exit(1)
	}
	client.Start(ctx)

	// Reloaded limits and credential pools take effect without a restart.
	cfgManager.OnChange(func(newCfg *config.Config) {
		client.ApplyConfig(newCfg)
		logger.Info("applied reloaded configuration")
	})
	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	scheduler := sched.New(sched.Config{
		Enabled:          cfg.Scheduler.Enabled,
		TeamsInterval:    cfg.Scheduler.TeamsInterval,
		ScheduleInterval: cfg.Scheduler.ScheduleInterval,
		OddsInterval:     cfg.Scheduler.OddsInterval,
		Sports:           cfg.Scheduler.Sports,
	}, client, logger)
	scheduler.Start(ctx)

	mux := http.NewServeMux()
	registerRoutes(mux, client, cfg, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      observability.RequestIDMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func registerRoutes(mux *http.ServeMux, client *feedgate.Client, cfg *config.Config, logger *slog.Logger) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /v1/stats", handleStats(client))
	mux.HandleFunc("GET /v1/rotations", handleRotations(client))
	mux.HandleFunc("GET /v1/cache", handleCache(client))
	mux.HandleFunc("GET /v1/data/{dataType}/{sport}", handleData(client, logger))

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, promhttp.Handler())
	}
}
