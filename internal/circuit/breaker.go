package circuit

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"liquidity-sniper/internal/strategy"
)

// Config holds circuit breaker configuration.
type Config struct {
	Enabled              bool          `json:"enabled"`
	MaxConsecutiveLosses int           `json:"max_consecutive_losses"`
	Cooldown             time.Duration `json:"cooldown"`
	MaxDailyDrawdown     float64       `json:"max_daily_drawdown"` // fraction, e.g. 0.10
	GlobalHalt           time.Duration `json:"global_halt"`
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		MaxConsecutiveLosses: 3,
		Cooldown:             4 * time.Hour,
		MaxDailyDrawdown:     0.10,
		GlobalHalt:           24 * time.Hour,
	}
}

// sideState tracks one (symbol, side) loss streak.
type sideState struct {
	consecutiveLosses int
	blockedUntil      time.Time // zero means not blocked
}

// Breaker halts entries per (symbol, side) after consecutive losses and
// globally after a same-day portfolio drawdown. Every time comparison uses
// the timeline clock passed by the caller, never the wall clock, so the same
// breaker drives backtests deterministically.
type Breaker struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.RWMutex
	state map[string]map[strategy.Side]*sideState

	dailyStartBalance  float64
	currentDay         time.Time // truncated to UTC date; zero before first update
	globalBlockedUntil time.Time
}

// NewBreaker creates a breaker with the given configuration.
func NewBreaker(cfg Config, logger zerolog.Logger) *Breaker {
	if cfg.MaxConsecutiveLosses <= 0 {
		cfg.MaxConsecutiveLosses = 3
	}
	if cfg.GlobalHalt <= 0 {
		cfg.GlobalHalt = 24 * time.Hour
	}
	return &Breaker{
		cfg:    cfg,
		logger: logger.With().Str("component", "circuit").Logger(),
		state:  map[string]map[strategy.Side]*sideState{},
	}
}

func (b *Breaker) sideStateLocked(symbol string, side strategy.Side) *sideState {
	bySide, ok := b.state[symbol]
	if !ok {
		bySide = map[strategy.Side]*sideState{
			strategy.SideBuy:  {},
			strategy.SideSell: {},
		}
		b.state[symbol] = bySide
	}
	st, ok := bySide[side]
	if !ok {
		st = &sideState{}
		bySide[side] = st
	}
	return st
}

// RecordTrade folds a closed trade into the (symbol, side) streak at
// timeline time now.
func (b *Breaker) RecordTrade(symbol string, side strategy.Side, pnlUSD float64, now time.Time) {
	if !b.cfg.Enabled {
		return
	}
	if math.IsNaN(pnlUSD) || math.IsInf(pnlUSD, 0) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.sideStateLocked(symbol, side)
	if pnlUSD > 0 {
		st.consecutiveLosses = 0
		st.blockedUntil = time.Time{}
		return
	}

	st.consecutiveLosses++
	if st.consecutiveLosses >= b.cfg.MaxConsecutiveLosses {
		st.blockedUntil = now.Add(b.cfg.Cooldown)
		b.logger.Warn().
			Str("symbol", symbol).
			Str("side", string(side)).
			Int("losses", st.consecutiveLosses).
			Time("blocked_until", st.blockedUntil).
			Msg("symbol circuit breaker tripped")
	}
}

// UpdatePortfolioState runs the global daily-drawdown check at timeline time
// now with current equity. A new UTC calendar day resets the daily anchor but
// never clears an active halt.
func (b *Breaker) UpdatePortfolioState(equity float64, now time.Time) {
	if !b.cfg.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	day := now.UTC().Truncate(24 * time.Hour)
	if !day.Equal(b.currentDay) {
		b.currentDay = day
		b.dailyStartBalance = equity
	}

	if b.dailyStartBalance <= 0 {
		return
	}
	drawdown := (b.dailyStartBalance - equity) / b.dailyStartBalance
	if drawdown >= b.cfg.MaxDailyDrawdown {
		if b.globalBlockedUntil.IsZero() || now.After(b.globalBlockedUntil) {
			b.globalBlockedUntil = now.Add(b.cfg.GlobalHalt)
			b.logger.Error().
				Float64("drawdown", drawdown).
				Time("blocked_until", b.globalBlockedUntil).
				Msg("global circuit breaker tripped, halting all entries")
		}
	}
}

// IsBlocked reports whether entries for (symbol, side) are halted at
// timeline time now, globally or per side.
func (b *Breaker) IsBlocked(symbol string, side strategy.Side, now time.Time) bool {
	if !b.cfg.Enabled {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.globalBlockedUntil.IsZero() && now.Before(b.globalBlockedUntil) {
		return true
	}
	bySide, ok := b.state[symbol]
	if !ok {
		return false
	}
	st, ok := bySide[side]
	if !ok {
		return false
	}
	return !st.blockedUntil.IsZero() && now.Before(st.blockedUntil)
}

// Stats returns a snapshot for diagnostics.
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	symbols := map[string]interface{}{}
	for sym, bySide := range b.state {
		entry := map[string]interface{}{}
		for side, st := range bySide {
			entry[string(side)] = map[string]interface{}{
				"consecutive_losses": st.consecutiveLosses,
				"blocked_until":      st.blockedUntil,
			}
		}
		symbols[sym] = entry
	}
	return map[string]interface{}{
		"enabled":              b.cfg.Enabled,
		"daily_start_balance":  b.dailyStartBalance,
		"global_blocked_until": b.globalBlockedUntil,
		"symbols":              symbols,
	}
}
