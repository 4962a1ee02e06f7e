package indicator

import (
	"math"

	"liquidity-sniper/internal/candle"
)

// BollingerResult holds the band values at the latest candle.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger computes Bollinger Bands over the typical price of the trailing
// window. ok is false when fewer than period candles are available.
func Bollinger(candles candle.Series, period int, mult float64) (BollingerResult, bool) {
	if len(candles) < period {
		return BollingerResult{}, false
	}

	window := candles[len(candles)-period:]
	mean := 0.0
	for _, c := range window {
		mean += c.TypicalPrice()
	}
	mean /= float64(period)

	variance := 0.0
	for _, c := range window {
		diff := c.TypicalPrice() - mean
		variance += diff * diff
	}
	std := math.Sqrt(variance / float64(period))

	return BollingerResult{
		Upper:  mean + mult*std,
		Middle: mean,
		Lower:  mean - mult*std,
	}, true
}

// BollingerSeries computes per-candle upper and lower bands for
// visualization. The first period-1 values are NaN, which serializes to a
// null sentinel in overlays.
func BollingerSeries(candles candle.Series, period int, mult float64) (upper, lower []float64) {
	upper = make([]float64, len(candles))
	lower = make([]float64, len(candles))
	for i := range candles {
		if i+1 < period {
			upper[i] = math.NaN()
			lower[i] = math.NaN()
			continue
		}
		res, _ := Bollinger(candles[:i+1], period, mult)
		upper[i] = res.Upper
		lower[i] = res.Lower
	}
	return upper, lower
}
