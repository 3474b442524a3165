package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"exoclassifier/config"
	"exoclassifier/logging"
	"exoclassifier/training"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	dataset := flag.String("dataset", "", "KOI csv export (overrides training.dataset)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *dataset != "" {
		cfg.Training.Dataset = *dataset
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := training.Run(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("training failed", zap.Error(err))
	}

	for _, eval := range result.Evaluations {
		fmt.Printf("--- %s: accuracy %.4f ---\n%s\n", eval.Name, eval.Accuracy, eval.Report)
	}
	fmt.Printf("model saved to %s\n", cfg.Artifacts.Model)
}
