package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"originchats/internal/app"
	"originchats/pkg/config"
	"originchats/pkg/logger"
)

func main() {
	_ = godotenv.Load(".env")

	cfgPath := flag.String("config", "config.yml", "path to config file")
	addr := flag.String("addr", "", "listen address override (host)")
	dbPath := flag.String("db", "", "database path override")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Address = *addr
	}
	if *dbPath != "" {
		cfg.Server.DBPath = *dbPath
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	a, err := app.New(cfg)
	if err != nil {
		logger.Error("startup_failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Error("server_error", "error", err)
		os.Exit(1)
	}
}
