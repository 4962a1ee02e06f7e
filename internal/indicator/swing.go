package indicator

import (
	"time"

	"liquidity-sniper/internal/candle"
)

// SwingPoint is a confirmed local extreme.
type SwingPoint struct {
	Index     int
	Price     float64
	Timestamp time.Time
}

// isSwingHigh reports whether the bar at i strictly exceeds the highs of the
// lookback bars on each side.
func isSwingHigh(candles candle.Series, i, lookback int) bool {
	if i < lookback || i+lookback >= len(candles) {
		return false
	}
	h := candles[i].High
	for j := i - lookback; j <= i+lookback; j++ {
		if j == i {
			continue
		}
		if candles[j].High >= h {
			return false
		}
	}
	return true
}

func isSwingLow(candles candle.Series, i, lookback int) bool {
	if i < lookback || i+lookback >= len(candles) {
		return false
	}
	l := candles[i].Low
	for j := i - lookback; j <= i+lookback; j++ {
		if j == i {
			continue
		}
		if candles[j].Low <= l {
			return false
		}
	}
	return true
}

// RecentSwingHigh walks from the newest confirmable bar backwards and returns
// the first swing high no older than maxAge bars from the end. found is false
// when none exists.
func RecentSwingHigh(candles candle.Series, lookback, maxAge int) (SwingPoint, bool) {
	oldest := len(candles) - 1 - maxAge
	if oldest < 0 {
		oldest = 0
	}
	for i := len(candles) - 1 - lookback; i >= oldest; i-- {
		if isSwingHigh(candles, i, lookback) {
			return SwingPoint{Index: i, Price: candles[i].High, Timestamp: candles[i].Timestamp}, true
		}
	}
	return SwingPoint{}, false
}

// RecentSwingLow is the symmetric walk for swing lows.
func RecentSwingLow(candles candle.Series, lookback, maxAge int) (SwingPoint, bool) {
	oldest := len(candles) - 1 - maxAge
	if oldest < 0 {
		oldest = 0
	}
	for i := len(candles) - 1 - lookback; i >= oldest; i-- {
		if isSwingLow(candles, i, lookback) {
			return SwingPoint{Index: i, Price: candles[i].Low, Timestamp: candles[i].Timestamp}, true
		}
	}
	return SwingPoint{}, false
}

// WindowExtremes returns the min low and max high over the last n candles,
// excluding the final (current) candle.
func WindowExtremes(candles candle.Series, n int) (swingLow, swingHigh float64, ok bool) {
	if len(candles) < n+1 {
		return 0, 0, false
	}
	window := candles[len(candles)-n-1 : len(candles)-1]
	swingLow = window[0].Low
	swingHigh = window[0].High
	for _, c := range window {
		if c.Low < swingLow {
			swingLow = c.Low
		}
		if c.High > swingHigh {
			swingHigh = c.High
		}
	}
	return swingLow, swingHigh, true
}
