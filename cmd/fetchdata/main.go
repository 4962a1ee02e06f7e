// fetchdata warms the historical candle cache for a symbol list so the
// first backtest run does not pay the full download cost.
//
// Usage:
//
//	go run ./cmd/fetchdata -symbols BNBUSDT,SOLUSDT -interval 15m -days 30
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"liquidity-sniper/config"
	"liquidity-sniper/internal/binance"
	"liquidity-sniper/internal/warehouse"
)

func main() {
	symbolsFlag := flag.String("symbols", "BNBUSDT,SOLUSDT,TAOUSDT", "comma-separated symbol list")
	interval := flag.String("interval", "15m", "candle interval")
	days := flag.Int("days", 30, "days of history to fetch")
	htf := flag.Bool("htf", true, "also fetch the 4h bias timeframe")
	flag.Parse()

	logger := zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.InfoLevel).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	client := binance.NewClient(cfg.BinanceConfig.BaseURL, cfg.BinanceConfig.Timeout, logger)
	loader, err := warehouse.NewLoader(client, cfg.WarehouseConfig.CacheDir, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize warehouse")
	}

	symbols := strings.Split(*symbolsFlag, ",")
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)

	ctx := context.Background()

	if _, err := loader.LoadPortfolio(ctx, symbols, *interval, start, end); err != nil {
		logger.Error().Err(err).Msg("fetch failed")
		os.Exit(1)
	}
	logger.Info().Str("interval", *interval).Int("days", *days).Msg("cache warmed")

	if *htf {
		htfStart := start.AddDate(0, 0, -60)
		if _, err := loader.LoadPortfolio(ctx, symbols, "4h", htfStart, end); err != nil {
			logger.Error().Err(err).Msg("htf fetch failed")
			os.Exit(1)
		}
		logger.Info().Msg("4h bias cache warmed")
	}
}
