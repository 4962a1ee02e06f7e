package indicator

import (
	"math"
	"testing"
	"time"

	"liquidity-sniper/internal/candle"
)

func flatCandles(n int, close float64, start time.Time) candle.Series {
	series := make(candle.Series, n)
	for i := range series {
		series[i] = candle.Candle{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      close,
			High:      close + 0.5,
			Low:       close - 0.5,
			Close:     close,
			Volume:    100,
		}
	}
	return series
}

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestATRShortInputReturnsZero(t *testing.T) {
	if got := ATR(flatCandles(14, 100, day0), 14); got != 0 {
		t.Errorf("expected 0 for short input, got %f", got)
	}
}

func TestATRConstantRange(t *testing.T) {
	// Every candle spans exactly 1.0 with no gaps, so the true range is
	// constant and Wilder smoothing converges on it exactly.
	got := ATR(flatCandles(50, 100, day0), 14)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected ATR 1.0, got %f", got)
	}
}

func TestBollingerWarmup(t *testing.T) {
	if _, ok := Bollinger(flatCandles(19, 100, day0), 20, 2.0); ok {
		t.Error("expected ok=false below period")
	}

	res, ok := Bollinger(flatCandles(30, 100, day0), 20, 2.0)
	if !ok {
		t.Fatal("expected bands for sufficient data")
	}
	// Constant typical price: zero deviation, bands collapse onto the mean.
	if math.Abs(res.Upper-res.Lower) > 1e-9 || math.Abs(res.Middle-100) > 1e-9 {
		t.Errorf("expected collapsed bands at 100, got %+v", res)
	}
}

func TestBollingerSeriesNaNPadding(t *testing.T) {
	upper, lower := BollingerSeries(flatCandles(25, 100, day0), 20, 2.0)
	for i := 0; i < 19; i++ {
		if !math.IsNaN(upper[i]) || !math.IsNaN(lower[i]) {
			t.Fatalf("expected NaN sentinel at index %d", i)
		}
	}
	if math.IsNaN(upper[19]) {
		t.Error("expected real value at index 19")
	}
}

func TestVWAPAnchorsPerDay(t *testing.T) {
	// Day one trades at 50, day two at 100. The anchored VWAP of the latest
	// candle must ignore day one entirely.
	series := flatCandles(10, 50, day0)
	dayTwo := day0.Add(24 * time.Hour)
	series = append(series, flatCandles(4, 100, dayTwo)...)

	vwap, ok := VWAP(series)
	if !ok {
		t.Fatal("expected vwap")
	}
	if math.Abs(vwap-100) > 1e-9 {
		t.Errorf("expected day-anchored vwap 100, got %f", vwap)
	}
}

func TestVWAPSeriesResetsAtDateBoundary(t *testing.T) {
	series := flatCandles(4, 50, day0)
	series = append(series, flatCandles(2, 100, day0.Add(24*time.Hour))...)

	out := VWAPSeries(series)
	if len(out) != 6 {
		t.Fatalf("expected 6 values, got %d", len(out))
	}
	if math.Abs(out[3]-50) > 1e-9 {
		t.Errorf("expected day-one vwap 50, got %f", out[3])
	}
	if math.Abs(out[4]-100) > 1e-9 {
		t.Errorf("expected reset vwap 100 on new day, got %f", out[4])
	}
}

func TestEmptyVWAP(t *testing.T) {
	if _, ok := VWAP(nil); ok {
		t.Error("expected ok=false on empty series")
	}
}

func TestStochRSIShortInput(t *testing.T) {
	res, ok := StochRSI(flatCandles(10, 100, day0), DefaultStochRSIConfig())
	if ok {
		t.Error("expected ok=false for short input")
	}
	if res.Zone != ZoneNeutral {
		t.Errorf("expected neutral zone fallback, got %s", res.Zone)
	}
}

func TestStochRSIBounds(t *testing.T) {
	// Alternate closes so the oscillator has real variance.
	series := flatCandles(60, 100, day0)
	for i := range series {
		if i%2 == 0 {
			series[i].Close = 100 + float64(i%7)
		} else {
			series[i].Close = 100 - float64(i%5)
		}
	}
	res, ok := StochRSI(series, DefaultStochRSIConfig())
	if !ok {
		t.Fatal("expected result for sufficient data")
	}
	if res.K < 0 || res.K > 100 || res.D < 0 || res.D > 100 {
		t.Errorf("oscillator outside [0,100]: k=%f d=%f", res.K, res.D)
	}
}

func TestRecentSwingPoints(t *testing.T) {
	series := flatCandles(40, 100, day0)
	series[30].High = 105 // isolated peak
	series[25].Low = 95   // isolated trough

	high, found := RecentSwingHigh(series, 3, 20)
	if !found || high.Price != 105 || high.Index != 30 {
		t.Errorf("expected swing high 105 at 30, got %+v found=%v", high, found)
	}

	low, found := RecentSwingLow(series, 3, 20)
	if !found || low.Price != 95 || low.Index != 25 {
		t.Errorf("expected swing low 95 at 25, got %+v found=%v", low, found)
	}
}

func TestWindowExtremesExcludesCurrent(t *testing.T) {
	series := flatCandles(30, 100, day0)
	series[len(series)-1].Low = 90 // current candle must not count

	lo, hi, ok := WindowExtremes(series, 20)
	if !ok {
		t.Fatal("expected extremes")
	}
	if lo != 99.5 || hi != 100.5 {
		t.Errorf("expected extremes from prior bars only, got lo=%f hi=%f", lo, hi)
	}
}

func TestDetectBullishSFP(t *testing.T) {
	series := flatCandles(52, 100, day0)
	// Confirmed swing low at 98 well inside the lookback window.
	series[44].Low = 98
	// Current candle sweeps below it and reclaims, on elevated volume.
	last := len(series) - 1
	series[last].Low = 97.5
	series[last].Close = 100.2
	series[last].High = 100.4
	series[last].Volume = 250

	res := DetectSFP(series, 20, 20)
	if res.Type != SFPBullish || !res.Valid {
		t.Fatalf("expected bullish SFP, got %+v", res)
	}
	if res.SwingPrice != 98 {
		t.Errorf("expected swing price 98, got %f", res.SwingPrice)
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Errorf("confidence outside (0,1]: %f", res.Confidence)
	}
	if res.VolumeRatio <= 1.5 {
		t.Errorf("expected elevated volume ratio, got %f", res.VolumeRatio)
	}
}

func TestDetectSFPNoneOnQuietCandle(t *testing.T) {
	series := flatCandles(52, 100, day0)
	if res := DetectSFP(series, 20, 20); res.Type != SFPNone || res.Valid {
		t.Errorf("expected no SFP on flat data, got %+v", res)
	}
}

func TestEMAAndSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	if got := SMA(values, 5); math.Abs(got-3) > 1e-9 {
		t.Errorf("expected SMA 3, got %f", got)
	}
	if got := SMA(values, 10); got != 0 {
		t.Errorf("expected 0 for short SMA input, got %f", got)
	}
	if got := EMA(nil, 10); got != 0 {
		t.Errorf("expected 0 EMA for empty input, got %f", got)
	}
	// EMA of a constant series is that constant.
	if got := EMA([]float64{7, 7, 7, 7}, 3); math.Abs(got-7) > 1e-9 {
		t.Errorf("expected EMA 7, got %f", got)
	}
}
