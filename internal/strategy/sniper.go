package strategy

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"liquidity-sniper/internal/analysis"
	"liquidity-sniper/internal/candle"
	"liquidity-sniper/internal/indicator"
)

const (
	// minHistory is the warmup requirement before any signal is produced.
	minHistory = 50

	// sniperLookback is the swing window for limit placement.
	sniperLookback = 20

	// proximityThreshold is how close (fractionally) price must be to a
	// swing extreme before a limit is parked in front of it.
	proximityThreshold = 0.015

	// tpFanStep spaces TP2 and TP3 off TP1.
	tpFanStep = 0.05
)

// MarketContext is the per-tick indicator snapshot handed to a strategy.
// Transient; rebuilt each tick.
type MarketContext struct {
	History   candle.Series
	Current   candle.Candle
	VWAP      float64
	HasVWAP   bool
	Bollinger indicator.BollingerResult
	StochRSI  indicator.StochRSIResult
	ATR       float64
	SFP       indicator.SFPResult
	SwingHigh float64
	SwingLow  float64
	HTFBias   analysis.Bias
}

// Generator produces Liquidity Sniper signals: limit orders parked just in
// front of recent swing extremes to front-run liquidity sweeps.
type Generator struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewGenerator creates a signal generator backed by the registry.
func NewGenerator(registry *Registry, logger zerolog.Logger) *Generator {
	return &Generator{
		registry: registry,
		logger:   logger.With().Str("component", "signals").Logger(),
	}
}

// prepareContext computes the indicator snapshot for the window.
func (g *Generator) prepareContext(candles candle.Series, htfBias analysis.Bias) MarketContext {
	current := candles[len(candles)-1]
	ctx := MarketContext{
		History: candles,
		Current: current,
		HTFBias: htfBias,
	}

	ctx.VWAP, ctx.HasVWAP = indicator.VWAP(candles)
	ctx.Bollinger, _ = indicator.Bollinger(candles, 20, 2.0)
	ctx.StochRSI, _ = indicator.StochRSI(candles, indicator.DefaultStochRSIConfig())
	ctx.ATR = indicator.ATR(candles, 14)
	ctx.SFP = indicator.DetectSFP(candles, sniperLookback, 20)
	if lo, hi, ok := indicator.WindowExtremes(candles, sniperLookback); ok {
		ctx.SwingLow = lo
		ctx.SwingHigh = hi
	}
	return ctx
}

// Generate returns at most one signal for the symbol at the latest candle,
// or nil. Requires minHistory bars and a valid ATR.
func (g *Generator) Generate(candles candle.Series, symbol string, htfBias analysis.Bias) *Signal {
	if len(candles) < minHistory {
		return nil
	}
	cfg := g.registry.Get(symbol)
	ctx := g.prepareContext(candles, htfBias)

	switch cfg.StrategyName {
	case StrategyNameSniper:
		return g.liquiditySniper(ctx, cfg, symbol)
	default:
		// Other strategy names (trend_pullback) are registered but not yet
		// dispatched; see the confluence scorer.
		return nil
	}
}

// liquiditySniper places a limit just beyond the nearest swing extreme when
// price approaches it. The HTF bias filter is intentionally bypassed: these
// are counter-trend mean-reversion sweeps.
func (g *Generator) liquiditySniper(ctx MarketContext, cfg Config, symbol string) *Signal {
	if ctx.ATR <= 0 {
		return nil
	}
	if ctx.SwingLow <= 0 || ctx.SwingHigh <= 0 {
		return nil
	}

	price := ctx.Current.Close
	distToLow := (price - ctx.SwingLow) / ctx.SwingLow
	distToHigh := (ctx.SwingHigh - price) / ctx.SwingHigh

	var (
		side       Side
		limitPrice float64
		stopLoss   float64
		tp1        float64
	)

	switch {
	case distToLow > 0 && distToLow < proximityThreshold:
		side = SideBuy
		limitPrice = ctx.SwingLow * 0.999
		stopLoss = limitPrice * 0.995
		tp1 = limitPrice * 1.02
	case distToHigh > 0 && distToHigh < proximityThreshold:
		side = SideSell
		limitPrice = ctx.SwingHigh * 1.001
		stopLoss = limitPrice * 1.005
		tp1 = limitPrice * 0.98
	default:
		return nil
	}

	confidence := 0.7
	if ctx.HasVWAP {
		vwapDist := math.Abs(price-ctx.VWAP) / ctx.VWAP
		confidence += math.Min(0.2, vwapDist*10)
	}

	var tp2, tp3 float64
	if side == SideBuy {
		tp2 = tp1 * (1 + tpFanStep)
		tp3 = tp1 * (1 + 2*tpFanStep)
	} else {
		tp2 = tp1 * (1 - tpFanStep)
		tp3 = tp1 * (1 - 2*tpFanStep)
	}

	signal := &Signal{
		Symbol:          symbol,
		Side:            side,
		GeneratedAt:     ctx.Current.Timestamp,
		ReferencePrice:  price,
		EntryPrice:      limitPrice,
		IsLimitOrder:    true,
		StopLoss:        stopLoss,
		TPLevels:        TPLevels{TP1: tp1, TP2: tp2, TP3: tp3},
		RiskRewardRatio: math.Abs(tp1-limitPrice) / math.Abs(limitPrice-stopLoss),
		Confidence:      confidence,
		Reasons:         []string{fmt.Sprintf("Sniper limit @ %.4f", limitPrice)},
		Indicators:      map[string]float64{"atr": ctx.ATR},
	}
	if err := signal.Validate(); err != nil {
		g.logger.Warn().Err(err).Str("symbol", symbol).Msg("dropping malformed signal")
		return nil
	}
	return signal
}
