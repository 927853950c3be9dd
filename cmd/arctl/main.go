package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"receivables/internal/adapters/cli"
	"receivables/internal/app"
	"receivables/internal/config"
	"receivables/internal/db"
	"receivables/internal/logger"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, cfgErr := config.Load()
	logCfg := logger.DefaultConfig()
	if cfgErr == nil {
		logCfg = cfg.GetLoggerConfig()
	}
	if err := logger.Setup(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	var jwtSecret string
	if cfg != nil {
		jwtSecret = cfg.JWTSecret
	}

	root := cli.NewRootCommand(cli.Deps{
		Version:   version,
		JWTSecret: jwtSecret,
		Service: func(ctx context.Context) (app.ApplicationService, func(), error) {
			if cfgErr != nil {
				return nil, nil, cfgErr
			}
			pool, err := db.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, nil, err
			}
			svc, err := app.Build(ctx, cfg, pool, logger.GetLogger())
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			return svc, pool.Close, nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		lg := logger.WithComponent("arctl")
		lg.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
