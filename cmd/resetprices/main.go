// Command resetprices clears the price table of every running pricestate
// instance listening on the configured Postgres channel.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"pricestate/config"
	"pricestate/logger"
	"pricestate/pkg/storage/postgres"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer zl.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	dsn, err := cfg.Postgres.DSN(ctx, cfg.App.Env)
	if err != nil {
		zl.Fatal("failed to build dsn", zap.Error(err))
	}

	client, err := postgres.NewClient(dsn)
	if err != nil {
		zl.Fatal("failed to connect to DB", zap.Error(err))
	}
	defer client.Close()

	if !client.IsHealthy(ctx) {
		zl.Fatal("database is not reachable")
	}

	if err := client.NotifyReset(ctx, cfg.Postgres.ResetChannel); err != nil {
		zl.Fatal("failed to send reset", zap.Error(err))
	}
	zl.Info("reset sent", zap.String("channel", cfg.Postgres.ResetChannel))
}
