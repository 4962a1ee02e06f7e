package candle

import (
	"fmt"
	"sort"
	"time"
)

// Candle is a single immutable OHLCV record. Timestamps are UTC.
type Candle struct {
	Timestamp time.Time `json:"time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks the OHLCV invariants.
func (c Candle) Validate() error {
	lo, hi := c.Open, c.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	if c.Low > lo || c.High < hi {
		return fmt.Errorf("invalid candle at %s: low=%.8f open=%.8f close=%.8f high=%.8f",
			c.Timestamp.Format(time.RFC3339), c.Low, c.Open, c.Close, c.High)
	}
	if c.Volume < 0 {
		return fmt.Errorf("invalid candle at %s: negative volume %.8f", c.Timestamp.Format(time.RFC3339), c.Volume)
	}
	return nil
}

// TypicalPrice returns (high + low + close) / 3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3.0
}

// Range returns high - low.
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Series is an ordered sequence of candles with strictly increasing
// timestamps and a uniform interval.
type Series []Candle

// Normalize sorts ascending by timestamp and drops duplicate timestamps,
// keeping the first occurrence. Returns the cleaned series.
func Normalize(candles []Candle) Series {
	out := make(Series, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	deduped := out[:0]
	for _, c := range out {
		if len(deduped) > 0 && c.Timestamp.Equal(deduped[len(deduped)-1].Timestamp) {
			continue
		}
		deduped = append(deduped, c)
	}
	return deduped
}

// Slice returns the candles with start <= timestamp <= end.
func (s Series) Slice(start, end time.Time) Series {
	lo := sort.Search(len(s), func(i int) bool {
		return !s[i].Timestamp.Before(start)
	})
	hi := sort.Search(len(s), func(i int) bool {
		return s[i].Timestamp.After(end)
	})
	if lo >= hi {
		return Series{}
	}
	return s[lo:hi]
}

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// Last returns the most recent candle; ok is false for an empty series.
func (s Series) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}
