package circuit

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"liquidity-sniper/internal/strategy"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestBreaker() *Breaker {
	return NewBreaker(DefaultConfig(), zerolog.Nop())
}

func TestBlocksAfterConsecutiveLosses(t *testing.T) {
	b := newTestBreaker()

	b.RecordTrade("BNBUSDT", strategy.SideBuy, -10, t0)
	b.RecordTrade("BNBUSDT", strategy.SideBuy, -10, t0.Add(time.Minute))
	if b.IsBlocked("BNBUSDT", strategy.SideBuy, t0.Add(2*time.Minute)) {
		t.Fatal("blocked after only 2 losses")
	}

	tripAt := t0.Add(2 * time.Minute)
	b.RecordTrade("BNBUSDT", strategy.SideBuy, -10, tripAt)

	cooldown := 4 * time.Hour
	if !b.IsBlocked("BNBUSDT", strategy.SideBuy, tripAt) {
		t.Error("expected block at trip time")
	}
	if !b.IsBlocked("BNBUSDT", strategy.SideBuy, tripAt.Add(cooldown-time.Second)) {
		t.Error("expected block just before cooldown expiry")
	}
	if b.IsBlocked("BNBUSDT", strategy.SideBuy, tripAt.Add(cooldown)) {
		t.Error("expected unblock exactly at cooldown expiry")
	}

	// The other side and other symbols are unaffected.
	if b.IsBlocked("BNBUSDT", strategy.SideSell, tripAt) {
		t.Error("SELL side should not be blocked")
	}
	if b.IsBlocked("SOLUSDT", strategy.SideBuy, tripAt) {
		t.Error("other symbol should not be blocked")
	}
}

func TestWinResetsStreak(t *testing.T) {
	b := newTestBreaker()

	b.RecordTrade("BNBUSDT", strategy.SideSell, -10, t0)
	b.RecordTrade("BNBUSDT", strategy.SideSell, -10, t0)
	b.RecordTrade("BNBUSDT", strategy.SideSell, 25, t0)
	b.RecordTrade("BNBUSDT", strategy.SideSell, -10, t0)
	b.RecordTrade("BNBUSDT", strategy.SideSell, -10, t0)

	if b.IsBlocked("BNBUSDT", strategy.SideSell, t0.Add(time.Minute)) {
		t.Error("streak should have been reset by the winning trade")
	}
}

func TestZeroPnLCountsAsLoss(t *testing.T) {
	b := newTestBreaker()
	for i := 0; i < 3; i++ {
		b.RecordTrade("BNBUSDT", strategy.SideBuy, 0, t0)
	}
	if !b.IsBlocked("BNBUSDT", strategy.SideBuy, t0.Add(time.Minute)) {
		t.Error("break-even trades should count toward the loss streak")
	}
}

func TestGlobalDrawdownHalt(t *testing.T) {
	b := newTestBreaker()

	b.UpdatePortfolioState(10000, t0)
	b.UpdatePortfolioState(9500, t0.Add(time.Hour))
	if b.IsBlocked("ANYUSDT", strategy.SideBuy, t0.Add(time.Hour)) {
		t.Fatal("a 5 percent drawdown should not trip the 10 percent breaker")
	}

	haltAt := t0.Add(2 * time.Hour)
	b.UpdatePortfolioState(8999, haltAt) // 10.01% same-day drawdown
	if !b.IsBlocked("ANYUSDT", strategy.SideBuy, haltAt) {
		t.Fatal("expected global halt after crossing the drawdown limit")
	}
	if !b.IsBlocked("OTHERUSDT", strategy.SideSell, haltAt.Add(23*time.Hour)) {
		t.Error("expected halt to cover all symbols and sides for 24h")
	}
	if b.IsBlocked("ANYUSDT", strategy.SideBuy, haltAt.Add(24*time.Hour)) {
		t.Error("expected halt lifted after 24h")
	}
}

func TestNewDayResetsAnchorButKeepsHalt(t *testing.T) {
	b := newTestBreaker()

	b.UpdatePortfolioState(10000, t0)
	haltAt := t0.Add(3 * time.Hour)
	b.UpdatePortfolioState(8900, haltAt)
	if !b.IsBlocked("ANYUSDT", strategy.SideBuy, haltAt) {
		t.Fatal("expected halt")
	}

	// Next calendar day, still within the 24h halt window.
	nextDay := t0.Add(20 * time.Hour) // 06:00 the following day
	b.UpdatePortfolioState(8900, nextDay)
	if !b.IsBlocked("ANYUSDT", strategy.SideBuy, nextDay) {
		t.Error("new day must not clear an active halt")
	}

	// The halt still lifts 24h after it tripped.
	if b.IsBlocked("ANYUSDT", strategy.SideBuy, haltAt.Add(25*time.Hour)) {
		t.Error("halt should have expired")
	}
}

func TestDisabledBreakerNeverBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	b := NewBreaker(cfg, zerolog.Nop())

	for i := 0; i < 5; i++ {
		b.RecordTrade("BNBUSDT", strategy.SideBuy, -10, t0)
	}
	b.UpdatePortfolioState(10000, t0)
	b.UpdatePortfolioState(1000, t0.Add(time.Hour))

	if b.IsBlocked("BNBUSDT", strategy.SideBuy, t0.Add(time.Hour)) {
		t.Error("disabled breaker must never block")
	}
}

func TestIgnoresNonFinitePnL(t *testing.T) {
	b := newTestBreaker()
	for i := 0; i < 5; i++ {
		b.RecordTrade("BNBUSDT", strategy.SideBuy, math.NaN(), t0)
	}
	if b.IsBlocked("BNBUSDT", strategy.SideBuy, t0.Add(time.Minute)) {
		t.Error("NaN trades must not advance the streak")
	}
}

func TestRetripAfterCooldownExpiry(t *testing.T) {
	b := newTestBreaker()

	b.RecordTrade("BNBUSDT", strategy.SideBuy, -10, t0)
	b.RecordTrade("BNBUSDT", strategy.SideBuy, -10, t0)
	b.RecordTrade("BNBUSDT", strategy.SideBuy, -10, t0)

	afterCooldown := t0.Add(4 * time.Hour)
	if b.IsBlocked("BNBUSDT", strategy.SideBuy, afterCooldown) {
		t.Fatal("expected unblock after cooldown")
	}

	// The streak never reset, so the next loss re-trips immediately.
	b.RecordTrade("BNBUSDT", strategy.SideBuy, -10, afterCooldown)
	if !b.IsBlocked("BNBUSDT", strategy.SideBuy, afterCooldown.Add(time.Minute)) {
		t.Error("expected re-trip on the next loss after an unexpired streak")
	}
}
