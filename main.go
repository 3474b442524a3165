package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"exoclassifier/config"
	"exoclassifier/db"
	exohttp "exoclassifier/http"
	"exoclassifier/logging"
	"exoclassifier/monitoring"
	"exoclassifier/predict"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Load artifacts; the server keeps running without them
	service, err := predict.Load(cfg.Artifacts.Model, cfg.Artifacts.Encoder)
	if err != nil {
		logger.Warn("model artifacts not loaded, run the trainer first", zap.Error(err))
	} else {
		logger.Info("model and label encoder loaded", zap.Strings("classes", service.Classes()))
	}

	var history exohttp.HistoryStore
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path)
		if err != nil {
			logger.Warn("training history unavailable", zap.String("path", cfg.Database.Path), zap.Error(err))
		} else {
			defer store.Close()
			history = store
		}
	}

	stats, err := exohttp.NewStatsCache(8)
	if err != nil {
		logger.Fatal("failed to create stats cache", zap.Error(err))
	}

	// 3. Start HTTP server
	serverCfg := exohttp.DefaultServerConfig()
	serverCfg.Addr = cfg.Addr()
	serverCfg.MaxUploadBytes = cfg.HTTP.MaxUploadBytes
	serverCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	handler := exohttp.NewHandler(exohttp.Deps{
		Service:   service,
		Stats:     stats,
		StatsPath: cfg.Artifacts.Stats,
		History:   history,
		Metrics:   monitoring.NewServiceMetrics(),
		Logger:    logger,
	})
	server := exohttp.NewServer(serverCfg, handler, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 4. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}
