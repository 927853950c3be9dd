package main

import (
	"context"
	"log"

	"receivables/internal/config"
	"receivables/internal/db"
	"receivables/internal/logger"
	"receivables/migrations"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
		log.Fatalf("logger: %v", err)
	}
	logr := logger.WithComponent("migrate")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logr.Fatal().Err(err).Msg("connect")
	}
	defer pool.Close()

	report, err := db.Migrate(ctx, pool, migrations.FS, logr)
	if err != nil {
		logr.Fatal().Err(err).Msg("migration failed")
	}
	logr.Info().Int("applied", len(report.Applied)).Int("skipped", len(report.Skipped)).Msg("all migrations processed")
}
