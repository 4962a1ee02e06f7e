package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"liquidity-sniper/config"
	"liquidity-sniper/internal/api"
	"liquidity-sniper/internal/binance"
	"liquidity-sniper/internal/warehouse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LoggingConfig)
	logger.Info().Msg("starting liquidity-sniper research server")

	client := binance.NewClient(cfg.BinanceConfig.BaseURL, cfg.BinanceConfig.Timeout, logger)
	loader, err := warehouse.NewLoader(client, cfg.WarehouseConfig.CacheDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize data warehouse")
	}

	server := api.NewServer(cfg, loader, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server exited with error")
	}
	logger.Info().Msg("shutdown complete")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Pretty {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
