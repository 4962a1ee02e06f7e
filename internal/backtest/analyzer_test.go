package backtest

import (
	"math"
	"testing"
	"time"

	"liquidity-sniper/internal/sim"
)

var anStart = time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

func trade(pnl, entry, stop, qty float64, reason sim.ExitReason) sim.ClosedTrade {
	return sim.ClosedTrade{
		Symbol:      "BNBUSDT",
		EntryPrice:  entry,
		StopAtEntry: stop,
		Qty:         qty,
		PnLUSD:      pnl,
		ExitReason:  reason,
		EntryTime:   anStart,
		ExitTime:    anStart.Add(time.Hour),
	}
}

func equityCurve(values ...float64) []sim.EquityPoint {
	out := make([]sim.EquityPoint, len(values))
	for i, v := range values {
		out[i] = sim.EquityPoint{Time: anStart.Add(time.Duration(i) * 15 * time.Minute), Equity: v}
	}
	return out
}

func TestAnalyzeBasicCounts(t *testing.T) {
	trades := []sim.ClosedTrade{
		trade(20, 100, 99, 1, sim.ExitTP1),
		trade(40, 100, 99, 1, sim.ExitTP2),
		trade(-10, 100, 99, 1, sim.ExitStopLoss),
		trade(0, 100, 99, 1, sim.ExitTimeout), // zero pnl counts as a loss
	}
	r := NewAnalyzer().Analyze(trades, equityCurve(10000, 10020, 10060, 10050, 10050), 10000)

	if r.TotalTrades != 4 || r.WinningTrades != 2 || r.LosingTrades != 2 {
		t.Errorf("bad counts: %+v", r)
	}
	if math.Abs(r.WinRate-50) > 1e-9 {
		t.Errorf("expected win rate 50, got %f", r.WinRate)
	}
	if math.Abs(r.AvgWin-30) > 1e-9 {
		t.Errorf("expected avg win 30, got %f", r.AvgWin)
	}
	if math.Abs(r.AvgLoss-(-5)) > 1e-9 {
		t.Errorf("expected avg loss -5, got %f", r.AvgLoss)
	}
	if r.ExitBreakdown[sim.ExitTP1] != 1 || r.ExitBreakdown[sim.ExitStopLoss] != 1 ||
		r.ExitBreakdown[sim.ExitTimeout] != 1 || r.ExitBreakdown[sim.ExitLiquidation] != 0 {
		t.Errorf("bad exit breakdown: %v", r.ExitBreakdown)
	}
	// Risk is 1.0 per trade; mean of 20, 40, -10, 0.
	if math.Abs(r.AvgRRRatio-12.5) > 1e-9 {
		t.Errorf("expected avg R:R 12.5, got %f", r.AvgRRRatio)
	}
}

func TestMaxDrawdown(t *testing.T) {
	r := NewAnalyzer().Analyze(nil, equityCurve(10000, 10500, 9800, 10200, 9500), 10000)
	if math.Abs(r.MaxDrawdown-1000) > 1e-9 {
		t.Errorf("expected max drawdown 1000, got %f", r.MaxDrawdown)
	}
	if math.Abs(r.MaxDrawdownPct-10) > 1e-9 {
		t.Errorf("expected 10 percent of initial capital, got %f", r.MaxDrawdownPct)
	}
}

func TestSharpeZeroOnFlatCurve(t *testing.T) {
	r := NewAnalyzer().Analyze(nil, equityCurve(10000, 10000, 10000, 10000), 10000)
	if r.SharpeRatio != 0 {
		t.Errorf("expected zero Sharpe on zero deviation, got %f", r.SharpeRatio)
	}
}

func TestProfitFactorInfinitySentinel(t *testing.T) {
	trades := []sim.ClosedTrade{
		trade(20, 100, 99, 1, sim.ExitTP1),
		trade(30, 100, 99, 1, sim.ExitTP2),
	}
	r := NewAnalyzer().Analyze(trades, equityCurve(10000, 10050), 10000)
	if !math.IsInf(r.ProfitFactor, 1) {
		t.Fatalf("expected +Inf profit factor, got %f", r.ProfitFactor)
	}

	safe := r.JSONSafe()
	if safe["profit_factor"] != "Infinity" {
		t.Errorf("expected Infinity sentinel in JSON, got %v", safe["profit_factor"])
	}
}

func TestJSONSafeMapsNonFiniteToNil(t *testing.T) {
	r := Report{SharpeRatio: math.NaN(), MaxDrawdown: math.Inf(1)}
	safe := r.JSONSafe()
	if safe["sharpe_ratio"] != nil {
		t.Errorf("expected nil for NaN sharpe, got %v", safe["sharpe_ratio"])
	}
	if safe["max_drawdown"] != nil {
		t.Errorf("expected nil for Inf drawdown, got %v", safe["max_drawdown"])
	}
}

func TestEmptyRunProducesZeroedReport(t *testing.T) {
	r := NewAnalyzer().Analyze(nil, nil, 10000)
	if r.TotalTrades != 0 || r.WinRate != 0 || r.ProfitFactor != 0 || r.SharpeRatio != 0 {
		t.Errorf("expected zeroed report, got %+v", r)
	}
}
