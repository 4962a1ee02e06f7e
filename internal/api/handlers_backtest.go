package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"liquidity-sniper/internal/analysis"
	"liquidity-sniper/internal/backtest"
	"liquidity-sniper/internal/circuit"
	"liquidity-sniper/internal/sim"
	"liquidity-sniper/internal/strategy"
)

// backtestRequest is the run_portfolio contract consumed by the frontend.
type backtestRequest struct {
	Symbols        []string   `json:"symbols" binding:"required"`
	Interval       string     `json:"interval"`
	StartTime      time.Time  `json:"start_time" binding:"required"`
	EndTime        *time.Time `json:"end_time"`
	InitialBalance float64    `json:"initial_balance"`
	RiskPerTrade   float64    `json:"risk_per_trade"`

	Leverage              float64 `json:"leverage"`
	MaxPositions          int     `json:"max_positions"`
	MaxOrderValue         float64 `json:"max_order_value"`
	MaintenanceMarginRate float64 `json:"maintenance_margin_rate"`

	EnableCircuitBreaker bool    `json:"enable_circuit_breaker"`
	MaxConsecutiveLosses int     `json:"cb_max_consecutive_losses"`
	CBCooldownHours      float64 `json:"cb_cooldown_hours"`
	CBDrawdownLimit      float64 `json:"cb_drawdown_limit"`
}

// applyDefaults fills omitted fields from the configured backtest defaults.
func (r *backtestRequest) applyDefaults(s *Server) {
	bt := s.cfg.BacktestConfig
	if r.Interval == "" {
		r.Interval = "15m"
	}
	if r.InitialBalance == 0 {
		r.InitialBalance = bt.InitialBalance
	}
	if r.RiskPerTrade == 0 {
		r.RiskPerTrade = bt.RiskPerTrade
	}
	if r.Leverage == 0 {
		r.Leverage = bt.Leverage
	}
	if r.MaxPositions == 0 {
		r.MaxPositions = bt.MaxPositions
	}
	if r.MaxOrderValue == 0 {
		r.MaxOrderValue = bt.MaxOrderValue
	}
	if r.MaintenanceMarginRate == 0 {
		r.MaintenanceMarginRate = bt.MaintenanceMarginRate
	}
	if r.MaxConsecutiveLosses == 0 {
		r.MaxConsecutiveLosses = 3
	}
	if r.CBCooldownHours == 0 {
		r.CBCooldownHours = 4
	}
	if r.CBDrawdownLimit == 0 {
		r.CBDrawdownLimit = 0.10
	}
}

func (r *backtestRequest) validate() string {
	if len(r.Symbols) == 0 {
		return "symbols are required"
	}
	if r.InitialBalance <= 0 {
		return "initial_balance must be positive"
	}
	if r.RiskPerTrade <= 0 || r.RiskPerTrade > 1 {
		return "risk_per_trade must be in (0, 1]"
	}
	if r.Leverage < 1 {
		return "leverage must be at least 1"
	}
	if r.MaxPositions < 1 {
		return "max_positions must be at least 1"
	}
	if r.CBDrawdownLimit <= 0 || r.CBDrawdownLimit > 1 {
		return "cb_drawdown_limit must be in (0, 1]"
	}
	return ""
}

// handleRunBacktest executes a portfolio backtest with the Liquidity Sniper
// strategy in shark-tank execution mode.
// POST /api/backtest/run
func (s *Server) handleRunBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	req.applyDefaults(s)
	if msg := req.validate(); msg != "" {
		errorResponse(c, http.StatusBadRequest, msg)
		return
	}

	simCfg := sim.DefaultConfig(req.InitialBalance)
	simCfg.RiskPerTrade = req.RiskPerTrade
	simCfg.Leverage = req.Leverage
	simCfg.MaxPositions = req.MaxPositions
	simCfg.MaxOrderValue = req.MaxOrderValue
	simCfg.MaintenanceMarginRate = req.MaintenanceMarginRate
	simulator := sim.NewSimulator(simCfg, s.logger)

	var breaker *circuit.Breaker
	if req.EnableCircuitBreaker {
		breaker = circuit.NewBreaker(circuit.Config{
			Enabled:              true,
			MaxConsecutiveLosses: req.MaxConsecutiveLosses,
			Cooldown:             time.Duration(req.CBCooldownHours * float64(time.Hour)),
			MaxDailyDrawdown:     req.CBDrawdownLimit,
			GlobalHalt:           24 * time.Hour,
		}, s.logger)
	}

	trendFilter, err := analysis.NewTrendFilter(200, 0.005)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	generator := strategy.NewGenerator(strategy.DefaultRegistry(), s.logger)
	engine := backtest.NewEngine(s.loader, generator, simulator, trendFilter, breaker, backtest.NewAnalyzer(), s.logger)

	engineReq := backtest.Request{
		Symbols:  req.Symbols,
		Interval: req.Interval,
		Start:    req.StartTime,
	}
	if req.EndTime != nil {
		engineReq.End = *req.EndTime
	}

	result, err := engine.RunPortfolio(c.Request.Context(), engineReq)
	if err != nil {
		if errors.Is(err, backtest.ErrNoData) {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("backtest failed")
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleCacheStats reports the warehouse cache contents.
// GET /api/backtest/cache
func (s *Server) handleCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.loader.CacheStats())
}

// handleClearCache removes cache files.
// DELETE /api/backtest/cache?symbol=BTCUSDT&interval=15m
func (s *Server) handleClearCache(c *gin.Context) {
	symbol := c.Query("symbol")
	interval := c.Query("interval")
	if err := s.loader.ClearCache(symbol, interval); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
