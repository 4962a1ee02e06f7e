package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration, read once at startup and
// threaded through construction as immutable data.
type Config struct {
	ServerConfig    ServerConfig    `json:"server"`
	BinanceConfig   BinanceConfig   `json:"binance"`
	WarehouseConfig WarehouseConfig `json:"warehouse"`
	BacktestConfig  BacktestConfig  `json:"backtest"`
	LoggingConfig   LoggingConfig   `json:"logging"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port           string   `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// BinanceConfig holds upstream market-data settings.
type BinanceConfig struct {
	BaseURL string        `json:"base_url"`
	Timeout time.Duration `json:"timeout"`
}

// WarehouseConfig holds the historical data cache settings.
type WarehouseConfig struct {
	CacheDir string `json:"cache_dir"`
}

// BacktestConfig holds the simulator defaults applied when a request omits
// a field.
type BacktestConfig struct {
	InitialBalance        float64 `json:"initial_balance"`
	RiskPerTrade          float64 `json:"risk_per_trade"`
	Leverage              float64 `json:"leverage"`
	MaxPositions          int     `json:"max_positions"`
	MaxOrderValue         float64 `json:"max_order_value"`
	MaintenanceMarginRate float64 `json:"maintenance_margin_rate"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console writer instead of JSON
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServerConfig: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8090"),
			AllowedOrigins: []string{getEnv("CORS_ORIGIN", "http://localhost:3000")},
		},
		BinanceConfig: BinanceConfig{
			BaseURL: getEnv("BINANCE_BASE_URL", "https://api.binance.com"),
			Timeout: getDurationEnv("BINANCE_TIMEOUT", 10*time.Second),
		},
		WarehouseConfig: WarehouseConfig{
			CacheDir: getEnv("CACHE_DIR", "data/cache"),
		},
		BacktestConfig: BacktestConfig{
			InitialBalance:        getFloatEnv("BT_INITIAL_BALANCE", 10000),
			RiskPerTrade:          getFloatEnv("BT_RISK_PER_TRADE", 0.01),
			Leverage:              getFloatEnv("BT_LEVERAGE", 10),
			MaxPositions:          getIntEnv("BT_MAX_POSITIONS", 3),
			MaxOrderValue:         getFloatEnv("BT_MAX_ORDER_VALUE", 50000),
			MaintenanceMarginRate: getFloatEnv("BT_MAINT_MARGIN_RATE", 0.004),
		},
		LoggingConfig: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Pretty: getBoolEnv("LOG_PRETTY", false),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
