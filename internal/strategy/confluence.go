package strategy

import (
	"fmt"
	"math"

	"liquidity-sniper/internal/analysis"
	"liquidity-sniper/internal/indicator"
)

// Confluence is the weighted alignment of independent evidence behind a
// trend-pullback entry. Backs the trend_pullback registry key; not yet
// dispatched from the engine path.
type Confluence struct {
	TrendAlignment     float64
	SweepStrength      float64
	OscillatorPosition float64
	VWAPStretch        float64

	TotalScore float64
	Direction  Side
	Reasoning  []string
}

// ConfluenceScorer combines per-factor scores into a single grade.
type ConfluenceScorer struct {
	trendWeight      float64
	sweepWeight      float64
	oscillatorWeight float64
	vwapWeight       float64

	minScore float64
}

// NewConfluenceScorer returns a scorer with the default weighting.
func NewConfluenceScorer() *ConfluenceScorer {
	return &ConfluenceScorer{
		trendWeight:      0.35,
		sweepWeight:      0.30,
		oscillatorWeight: 0.20,
		vwapWeight:       0.15,
		minScore:         0.70,
	}
}

// Score evaluates a pullback in the direction of the HTF bias. The returned
// confluence is nil when the bias is neutral; a missing sweep, or one that
// disagrees with the direction, leaves SweepStrength at zero.
func (cs *ConfluenceScorer) Score(ctx MarketContext) *Confluence {
	var direction Side
	switch ctx.HTFBias {
	case analysis.BiasBullish:
		direction = SideBuy
	case analysis.BiasBearish:
		direction = SideSell
	default:
		return nil
	}

	conf := &Confluence{Direction: direction, TrendAlignment: 1.0}
	conf.Reasoning = append(conf.Reasoning, fmt.Sprintf("HTF bias %s", ctx.HTFBias))

	// Sweep evidence must agree with the pullback direction.
	if ctx.SFP.Valid {
		agrees := (direction == SideBuy && ctx.SFP.Type == indicator.SFPBullish) ||
			(direction == SideSell && ctx.SFP.Type == indicator.SFPBearish)
		if agrees {
			conf.SweepStrength = ctx.SFP.Confidence
			conf.Reasoning = append(conf.Reasoning,
				fmt.Sprintf("%s sweep, confidence %.2f", ctx.SFP.Type, ctx.SFP.Confidence))
		}
	}

	// Oscillator: buy pullbacks want the oscillator washed out low, sell
	// pullbacks want it stretched high.
	k := ctx.StochRSI.K
	if direction == SideBuy {
		conf.OscillatorPosition = clamp01((100 - k) / 100)
	} else {
		conf.OscillatorPosition = clamp01(k / 100)
	}
	if ctx.StochRSI.Zone == indicator.ZoneOversold || ctx.StochRSI.Zone == indicator.ZoneOverbought {
		conf.Reasoning = append(conf.Reasoning, fmt.Sprintf("stoch RSI %s", ctx.StochRSI.Zone))
	}

	// VWAP stretch: reward distance from fair value, saturating at 2%.
	if ctx.HasVWAP && ctx.VWAP > 0 {
		stretch := math.Abs(indicator.DistanceFromVWAP(ctx.Current.Close, ctx.VWAP))
		conf.VWAPStretch = clamp01(stretch / 0.02)
	} else {
		conf.VWAPStretch = 0.5
	}

	conf.TotalScore = conf.TrendAlignment*cs.trendWeight +
		conf.SweepStrength*cs.sweepWeight +
		conf.OscillatorPosition*cs.oscillatorWeight +
		conf.VWAPStretch*cs.vwapWeight

	return conf
}

// Passes reports whether the confluence clears the minimum score.
func (cs *ConfluenceScorer) Passes(conf *Confluence) bool {
	return conf != nil && conf.TotalScore >= cs.minScore
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
