package indicator

import (
	"math"

	"liquidity-sniper/internal/candle"
)

// ATR computes the Average True Range with Wilder's smoothing. The first ATR
// is the simple average of the first period true ranges; each subsequent ATR
// is ((prev*(period-1)) + tr) / period. Returns 0 when fewer than period+1
// candles are available.
func ATR(candles candle.Series, period int) float64 {
	if period < 1 || len(candles) < period+1 {
		return 0
	}

	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1].Close))
	}

	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)

	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

func trueRange(c candle.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low,
		math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}
