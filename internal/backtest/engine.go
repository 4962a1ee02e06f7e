package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"liquidity-sniper/internal/analysis"
	"liquidity-sniper/internal/candle"
	"liquidity-sniper/internal/circuit"
	"liquidity-sniper/internal/indicator"
	"liquidity-sniper/internal/sim"
	"liquidity-sniper/internal/strategy"
	"liquidity-sniper/internal/warehouse"
)

const (
	// htfInterval is the higher timeframe used for the bias filter.
	htfInterval = "4h"

	// htfWarmupDays of extra HTF history are loaded ahead of the range so
	// the EMA-200 has samples from the first tick.
	htfWarmupDays = 60

	// defaultWarmup is the LTF history requirement before signal generation.
	defaultWarmup = 50

	// htfBiasMinBars gates the bias filter; below this it stays NEUTRAL.
	htfBiasMinBars = 200
)

// ErrNoData is surfaced when the loader produced an empty timeline.
var ErrNoData = errors.New("no data loaded for requested range")

// Request describes one backtest run.
type Request struct {
	Symbols       []string
	Interval      string
	Start         time.Time
	End           time.Time // zero means "latest available"
	WarmupCandles int
}

func (r *Request) validate() error {
	if len(r.Symbols) == 0 {
		return fmt.Errorf("no symbols given")
	}
	for _, s := range r.Symbols {
		if s == "" {
			return fmt.Errorf("empty symbol in list")
		}
	}
	if !candle.ValidInterval(r.Interval) {
		return fmt.Errorf("unknown interval %q", r.Interval)
	}
	if !r.End.IsZero() && r.End.Before(r.Start) {
		return fmt.Errorf("end %s before start %s", r.End, r.Start)
	}
	return nil
}

// Overlays are the null-padded per-candle indicator series for charting.
// Nil entries mark warmup gaps and serialize as JSON null, never zero.
type Overlays struct {
	BBUpper   []*float64 `json:"bb_upper"`
	BBLower   []*float64 `json:"bb_lower"`
	VWAP      []*float64 `json:"vwap"`
	LimitBuy  []*float64 `json:"limit_buy"`
	LimitSell []*float64 `json:"limit_sell"`
}

// Result is the full backtest payload returned by value.
type Result struct {
	Symbols    []string                   `json:"symbols"`
	Stats      map[string]interface{}     `json:"stats"`
	Trades     []sim.ClosedTrade          `json:"trades"`
	Equity     []sim.EquityPoint          `json:"equity"`
	Candles    map[string][]candle.Candle `json:"candles"`
	Indicators map[string]Overlays        `json:"indicators"`
}

// Engine drives the deterministic multi-symbol backtest loop: an LTF
// timeline driver with a monotonic HTF pointer for bias synchronization.
// Single-threaded; concurrency lives only in the loader.
type Engine struct {
	loader      *warehouse.Loader
	generator   *strategy.Generator
	simulator   *sim.Simulator
	trendFilter *analysis.TrendFilter
	breaker     *circuit.Breaker // nil disables the circuit breaker
	analyzer    *Analyzer
	logger      zerolog.Logger
}

// NewEngine wires the engine's collaborators. breaker may be nil.
func NewEngine(
	loader *warehouse.Loader,
	generator *strategy.Generator,
	simulator *sim.Simulator,
	trendFilter *analysis.TrendFilter,
	breaker *circuit.Breaker,
	analyzer *Analyzer,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		loader:      loader,
		generator:   generator,
		simulator:   simulator,
		trendFilter: trendFilter,
		breaker:     breaker,
		analyzer:    analyzer,
		logger:      logger.With().Str("component", "backtest").Logger(),
	}
}

// RunPortfolio executes the backtest and returns the full result. The
// context cancels between ticks, leaving portfolio state consistent.
func (e *Engine) RunPortfolio(ctx context.Context, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	warmup := req.WarmupCandles
	if warmup <= 0 {
		warmup = defaultWarmup
	}
	end := req.End
	if end.IsZero() {
		end = time.Now().UTC()
	}

	ltfTimeline, err := e.loader.LoadPortfolio(ctx, req.Symbols, req.Interval, req.Start, end)
	if err != nil {
		return nil, err
	}
	htfStart := req.Start.AddDate(0, 0, -htfWarmupDays)
	htfTimeline, err := e.loader.LoadPortfolio(ctx, req.Symbols, htfInterval, htfStart, end)
	if err != nil {
		return nil, err
	}

	if len(ltfTimeline) == 0 {
		return nil, ErrNoData
	}

	ltfTimestamps := ltfTimeline.SortedTimestamps()
	htfTimestamps := htfTimeline.SortedTimestamps()

	e.logger.Info().
		Int("steps", len(ltfTimestamps)).
		Str("interval", req.Interval).
		Str("htf", htfInterval).
		Msg("starting backtest")

	ltfHistories := map[string]candle.Series{}
	htfHistories := map[string]candle.Series{}
	for _, sym := range req.Symbols {
		ltfHistories[sym] = candle.Series{}
		htfHistories[sym] = candle.Series{}
	}

	htfPtr := 0

	for i, ts := range ltfTimestamps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// A. Advance HTF histories up to the current moment.
		for htfPtr < len(htfTimestamps) && !htfTimestamps[htfPtr].After(ts) {
			for sym, c := range htfTimeline[htfTimestamps[htfPtr]] {
				htfHistories[sym] = append(htfHistories[sym], c)
			}
			htfPtr++
		}

		// B. Push LTF candles.
		tick := ltfTimeline[ts]
		for sym, c := range tick {
			ltfHistories[sym] = append(ltfHistories[sym], c)
		}

		// C. Classify the HTF bias per symbol.
		biasMap := map[string]analysis.Bias{}
		for _, sym := range req.Symbols {
			h := htfHistories[sym]
			if len(h) >= htfBiasMinBars {
				biasMap[sym] = e.trendFilter.Bias(h)
			} else {
				biasMap[sym] = analysis.BiasNeutral
			}
		}

		// D. Phase A: mark to market, manage exits.
		closed := e.simulator.Update(tick, ts)

		// E. Fold the tick's closed trades and portfolio health into the
		// circuit breaker.
		if e.breaker != nil {
			for _, trade := range closed {
				e.breaker.RecordTrade(trade.Symbol, trade.Side, trade.PnLUSD, ts)
			}
			e.breaker.UpdatePortfolioState(e.simulator.Equity(), ts)
		}

		// F. Signal generation for unblocked symbols with enough history.
		// Iterates the request's symbol order so the batch is deterministic.
		var batch []*strategy.Signal
		for _, sym := range req.Symbols {
			if _, present := tick[sym]; !present {
				continue
			}
			history := ltfHistories[sym]
			if len(history) < warmup {
				continue
			}

			longBlocked, shortBlocked := false, false
			if e.breaker != nil {
				longBlocked = e.breaker.IsBlocked(sym, strategy.SideBuy, ts)
				shortBlocked = e.breaker.IsBlocked(sym, strategy.SideSell, ts)
				if longBlocked && shortBlocked {
					continue
				}
			}

			signal := e.generator.Generate(history, sym, biasMap[sym])
			if signal == nil {
				continue
			}
			if signal.Side == strategy.SideBuy && longBlocked {
				continue
			}
			if signal.Side == strategy.SideSell && shortBlocked {
				continue
			}
			batch = append(batch, signal)
		}

		// G. Phase B: shark-tank admission.
		if len(batch) > 0 {
			e.simulator.ProcessBatchSignals(batch, ts)
		}

		if i%1000 == 0 {
			e.logger.Debug().Int("step", i).Int("total", len(ltfTimestamps)).Msg("progress")
		}
	}

	// Post-loop: overlays and the metric bundle.
	candlesOut := map[string][]candle.Candle{}
	overlaysOut := map[string]Overlays{}
	for _, sym := range req.Symbols {
		history := ltfHistories[sym]
		candlesOut[sym] = history
		overlaysOut[sym] = computeOverlays(history)
	}

	stats := e.simulator.Stats()
	report := e.analyzer.Analyze(e.simulator.Trades(), e.simulator.EquityCurve(), initialBalanceFrom(stats))
	for k, v := range report.JSONSafe() {
		stats[k] = v
	}

	return &Result{
		Symbols:    req.Symbols,
		Stats:      stats,
		Trades:     e.simulator.Trades(),
		Equity:     e.simulator.EquityCurve(),
		Candles:    candlesOut,
		Indicators: overlaysOut,
	}, nil
}

func initialBalanceFrom(stats map[string]interface{}) float64 {
	if v, ok := stats["initial_balance"].(float64); ok {
		return v
	}
	return 0
}

// computeOverlays produces the chart series: Bollinger(20,2) on typical
// price, anchored VWAP, and the sniper limit lines off the rolling 20-bar
// swing extremes.
func computeOverlays(history candle.Series) Overlays {
	n := len(history)
	ov := Overlays{
		BBUpper:   make([]*float64, n),
		BBLower:   make([]*float64, n),
		VWAP:      make([]*float64, n),
		LimitBuy:  make([]*float64, n),
		LimitSell: make([]*float64, n),
	}
	if n == 0 {
		return ov
	}

	upper, lower := indicator.BollingerSeries(history, 20, 2.0)
	vwap := indicator.VWAPSeries(history)
	for i := 0; i < n; i++ {
		ov.BBUpper[i] = floatPtr(upper[i])
		ov.BBLower[i] = floatPtr(lower[i])
		ov.VWAP[i] = floatPtr(vwap[i])

		const window = 20
		if i+1 < window {
			continue
		}
		lo, hi := history[i+1-window].Low, history[i+1-window].High
		for _, c := range history[i+1-window : i+1] {
			if c.Low < lo {
				lo = c.Low
			}
			if c.High > hi {
				hi = c.High
			}
		}
		buy := lo * 0.999
		sell := hi * 1.001
		ov.LimitBuy[i] = &buy
		ov.LimitSell[i] = &sell
	}
	return ov
}

func floatPtr(v float64) *float64 {
	if v != v { // NaN marks a warmup gap
		return nil
	}
	return &v
}
