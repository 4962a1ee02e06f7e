package indicator

import (
	"liquidity-sniper/internal/candle"
)

// StochZone labels where the oscillator sits relative to its thresholds.
type StochZone string

const (
	ZoneOversold    StochZone = "oversold"
	ZoneNeutralLow  StochZone = "neutral_low"
	ZoneNeutral     StochZone = "neutral"
	ZoneNeutralHigh StochZone = "neutral_high"
	ZoneOverbought  StochZone = "overbought"
)

// StochRSIResult holds the Stochastic RSI values at the latest candle.
type StochRSIResult struct {
	K    float64
	D    float64
	Zone StochZone
}

// StochRSIConfig sets the oscillator periods and zone thresholds.
type StochRSIConfig struct {
	RSIPeriod   int
	StochPeriod int
	SmoothK     int
	SmoothD     int
	Oversold    float64
	Overbought  float64
}

// DefaultStochRSIConfig returns the standard 14/14/3/3 setup with 30/70
// thresholds.
func DefaultStochRSIConfig() StochRSIConfig {
	return StochRSIConfig{
		RSIPeriod:   14,
		StochPeriod: 14,
		SmoothK:     3,
		SmoothD:     3,
		Oversold:    30,
		Overbought:  70,
	}
}

// StochRSI computes the Stochastic RSI oscillator. ok is false when the
// series is too short for a full calculation.
func StochRSI(candles candle.Series, cfg StochRSIConfig) (StochRSIResult, bool) {
	minLen := cfg.RSIPeriod + cfg.StochPeriod + cfg.SmoothK + cfg.SmoothD
	if len(candles) < minLen {
		return StochRSIResult{Zone: ZoneNeutral}, false
	}

	rsis := rsiSeries(candles.Closes(), cfg.RSIPeriod)
	if len(rsis) < cfg.StochPeriod {
		return StochRSIResult{Zone: ZoneNeutral}, false
	}

	// Raw stochastic of the RSI series.
	stoch := make([]float64, 0, len(rsis)-cfg.StochPeriod+1)
	for i := cfg.StochPeriod - 1; i < len(rsis); i++ {
		window := rsis[i-cfg.StochPeriod+1 : i+1]
		lo, hi := window[0], window[0]
		for _, v := range window {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi == lo {
			stoch = append(stoch, 50)
		} else {
			stoch = append(stoch, (rsis[i]-lo)/(hi-lo)*100)
		}
	}

	kSeries := smaSeries(stoch, cfg.SmoothK)
	dSeries := smaSeries(kSeries, cfg.SmoothD)
	if len(kSeries) == 0 || len(dSeries) == 0 {
		return StochRSIResult{Zone: ZoneNeutral}, false
	}

	k := kSeries[len(kSeries)-1]
	d := dSeries[len(dSeries)-1]
	return StochRSIResult{K: k, D: d, Zone: classifyZone(k, cfg.Oversold, cfg.Overbought)}, true
}

func classifyZone(k, oversold, overbought float64) StochZone {
	mid := (oversold + overbought) / 2
	switch {
	case k <= oversold:
		return ZoneOversold
	case k >= overbought:
		return ZoneOverbought
	case k < mid-5:
		return ZoneNeutralLow
	case k > mid+5:
		return ZoneNeutralHigh
	default:
		return ZoneNeutral
	}
}

// rsiSeries computes a Wilder-smoothed RSI value for each close after the
// initial warmup window.
func rsiSeries(closes []float64, period int) []float64 {
	if len(closes) < period+1 {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]float64, 0, len(closes)-period)
	out = append(out, rsiFromAverages(avgGain, avgLoss))

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out = append(out, rsiFromAverages(avgGain, avgLoss))
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// smaSeries returns the rolling simple average of values with the given
// window; the output is len(values)-window+1 long.
func smaSeries(values []float64, window int) []float64 {
	if window < 1 || len(values) < window {
		return nil
	}
	out := make([]float64, 0, len(values)-window+1)
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out = append(out, sum/float64(window))
		}
	}
	return out
}
