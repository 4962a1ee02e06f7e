package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"liquidity-sniper/internal/analysis"
	"liquidity-sniper/internal/candle"
	"liquidity-sniper/internal/circuit"
	"liquidity-sniper/internal/sim"
	"liquidity-sniper/internal/strategy"
	"liquidity-sniper/internal/warehouse"
)

var engGenesis = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// trendSource serves a steadily rising synthetic market on any interval. The
// sniper parks buy limits below the 20-bar swing low, but price keeps rising
// away from them, so none of them ever fills.
type trendSource struct {
	latest time.Time
}

func (s *trendSource) Klines(_ context.Context, symbol, interval string, limit int, endTime time.Time) ([]candle.Candle, error) {
	step, err := candle.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	end := s.latest
	if !endTime.IsZero() && endTime.Before(end) {
		end = endTime
	}

	var out []candle.Candle
	for ts := engGenesis; !ts.After(end); ts = ts.Add(step) {
		px := 100 + ts.Sub(engGenesis).Minutes()*0.01
		out = append(out, candle.Candle{
			Timestamp: ts,
			Open:      px - 0.05,
			High:      px + 3,
			Low:       px - 3,
			Close:     px,
			Volume:    100,
		})
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func newTestEngine(t *testing.T, initialBalance float64) (*Engine, *sim.Simulator) {
	t.Helper()

	logger := zerolog.Nop()
	loader, err := warehouse.NewLoader(&trendSource{latest: engGenesis.Add(120 * 24 * time.Hour)}, t.TempDir(), logger)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}

	simulator := sim.NewSimulator(sim.DefaultConfig(initialBalance), logger)
	trendFilter, err := analysis.NewTrendFilter(200, 0.005)
	if err != nil {
		t.Fatalf("trend filter: %v", err)
	}
	breaker := circuit.NewBreaker(circuit.DefaultConfig(), logger)
	generator := strategy.NewGenerator(strategy.DefaultRegistry(), logger)

	engine := NewEngine(loader, generator, simulator, trendFilter, breaker, NewAnalyzer(), logger)
	return engine, simulator
}

func TestRunPortfolioValidation(t *testing.T) {
	engine, _ := newTestEngine(t, 10000)
	ctx := context.Background()

	if _, err := engine.RunPortfolio(ctx, Request{Symbols: nil, Interval: "15m", Start: engGenesis}); err == nil {
		t.Error("expected error for empty symbol list")
	}
	if _, err := engine.RunPortfolio(ctx, Request{Symbols: []string{"BNBUSDT"}, Interval: "7x", Start: engGenesis}); err == nil {
		t.Error("expected error for unknown interval")
	}
	if _, err := engine.RunPortfolio(ctx, Request{
		Symbols: []string{"BNBUSDT"}, Interval: "15m",
		Start: engGenesis.Add(48 * time.Hour), End: engGenesis.Add(24 * time.Hour),
	}); err == nil {
		t.Error("expected error for end before start")
	}
}

func TestMonotoneUptrendRunsFlat(t *testing.T) {
	engine, simulator := newTestEngine(t, 10000)

	start := engGenesis.Add(90 * 24 * time.Hour)
	end := start.Add(50 * time.Hour) // 201 LTF candles, both ends inclusive

	result, err := engine.RunPortfolio(context.Background(), Request{
		Symbols:  []string{"BNBUSDT"},
		Interval: "15m",
		Start:    start,
		End:      end,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.Trades) != 0 {
		t.Errorf("expected zero trades in a monotone uptrend, got %d", len(result.Trades))
	}
	for _, p := range result.Equity {
		if p.Equity != 10000 {
			t.Fatalf("expected flat equity at 10000, got %f at %s", p.Equity, p.Time)
		}
	}
	if got := result.Stats["total_trades"]; got != 0 {
		t.Errorf("expected total_trades 0, got %v", got)
	}

	nCandles := len(result.Candles["BNBUSDT"])
	if nCandles == 0 {
		t.Fatal("expected candles in result")
	}
	if len(result.Equity) != nCandles {
		t.Errorf("expected one equity sample per tick: %d vs %d", len(result.Equity), nCandles)
	}

	overlays := result.Indicators["BNBUSDT"]
	if len(overlays.BBUpper) != nCandles || len(overlays.VWAP) != nCandles || len(overlays.LimitBuy) != nCandles {
		t.Fatal("overlay lengths must match the candle count")
	}
	for i := 0; i < 19; i++ {
		if overlays.BBUpper[i] != nil {
			t.Fatalf("expected null sentinel in BB warmup at %d", i)
		}
	}
	if overlays.BBUpper[19] == nil || overlays.LimitBuy[19] == nil {
		t.Error("expected real overlay values after warmup")
	}

	if simulator.Balance() != 10000 {
		t.Errorf("expected untouched balance, got %f", simulator.Balance())
	}
}

func TestRunPortfolioNoData(t *testing.T) {
	engine, _ := newTestEngine(t, 10000)

	// The synthetic universe starts at engGenesis; asking for data far
	// before it yields an empty timeline.
	_, err := engine.RunPortfolio(context.Background(), Request{
		Symbols:  []string{"BNBUSDT"},
		Interval: "15m",
		Start:    engGenesis.AddDate(-1, 0, 0),
		End:      engGenesis.Add(-24 * time.Hour),
	})
	if err == nil {
		t.Fatal("expected no-data error")
	}
}

func TestRunPortfolioCancellation(t *testing.T) {
	engine, _ := newTestEngine(t, 10000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.RunPortfolio(ctx, Request{
		Symbols:  []string{"BNBUSDT"},
		Interval: "15m",
		Start:    engGenesis.Add(90 * 24 * time.Hour),
		End:      engGenesis.Add(91 * 24 * time.Hour),
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
