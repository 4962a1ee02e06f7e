package indicator

import (
	"math"
	"time"

	"liquidity-sniper/internal/candle"
)

// VWAP computes the anchored Volume Weighted Average Price for the session
// day of the latest candle: cumulative typical-price*volume over cumulative
// volume, reset at each UTC date boundary. ok is false when the series is
// empty or the day's volume is zero.
func VWAP(candles candle.Series) (float64, bool) {
	if len(candles) == 0 {
		return 0, false
	}

	last := candles[len(candles)-1]
	y, m, d := last.Timestamp.UTC().Date()

	var totalTPV, totalVolume float64
	for _, c := range candles {
		cy, cm, cd := c.Timestamp.UTC().Date()
		if cy != y || cm != m || cd != d {
			continue
		}
		totalTPV += c.TypicalPrice() * c.Volume
		totalVolume += c.Volume
	}

	if totalVolume == 0 {
		return 0, false
	}
	return totalTPV / totalVolume, true
}

// VWAPSeries computes the per-candle anchored VWAP for visualization, with
// the cumulative sums reset at each UTC date boundary. Candles on a day with
// zero cumulative volume yield NaN.
func VWAPSeries(candles candle.Series) []float64 {
	out := make([]float64, len(candles))
	var cumTPV, cumVol float64
	var curY int
	var curM time.Month
	var curD int
	for i, c := range candles {
		y, m, d := c.Timestamp.UTC().Date()
		if i == 0 || y != curY || m != curM || d != curD {
			cumTPV, cumVol = 0, 0
			curY, curM, curD = y, m, d
		}
		cumTPV += c.TypicalPrice() * c.Volume
		cumVol += c.Volume
		if cumVol == 0 {
			out[i] = math.NaN()
		} else {
			out[i] = cumTPV / cumVol
		}
	}
	return out
}

// DistanceFromVWAP returns the fractional distance of price from vwap,
// positive when above.
func DistanceFromVWAP(price, vwap float64) float64 {
	if vwap == 0 {
		return 0
	}
	return (price - vwap) / vwap
}
