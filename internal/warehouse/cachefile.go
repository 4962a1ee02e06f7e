package warehouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"liquidity-sniper/internal/candle"
)

// cacheExt is the on-disk extension for columnar candle files.
const cacheExt = ".json.zst"

// columnarDoc is the cache file layout: one column per OHLCV field, one row
// per candle, timestamps in milliseconds since the Unix epoch (UTC).
type columnarDoc struct {
	Timestamp []int64   `json:"timestamp"`
	Open      []float64 `json:"open"`
	High      []float64 `json:"high"`
	Low       []float64 `json:"low"`
	Close     []float64 `json:"close"`
	Volume    []float64 `json:"volume"`
}

func cachePath(root, symbol, interval string) string {
	return filepath.Join(root, symbol, interval+cacheExt)
}

// writeCacheFile encodes the series as a zstd-compressed columnar document.
func writeCacheFile(path string, series candle.Series) error {
	doc := columnarDoc{
		Timestamp: make([]int64, len(series)),
		Open:      make([]float64, len(series)),
		High:      make([]float64, len(series)),
		Low:       make([]float64, len(series)),
		Close:     make([]float64, len(series)),
		Volume:    make([]float64, len(series)),
	}
	for i, c := range series {
		doc.Timestamp[i] = c.Timestamp.UnixMilli()
		doc.Open[i] = c.Open
		doc.High[i] = c.High
		doc.Low[i] = c.Low
		doc.Close[i] = c.Close
		doc.Volume[i] = c.Volume
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding cache document: %w", err)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return fmt.Errorf("compressing cache document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalizing zstd stream: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	// Write through a temp file so a crash never leaves a truncated cache.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// readCacheFile decodes a columnar cache file back into a series.
func readCacheFile(path string) (candle.Series, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()

	plain, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing cache file: %w", err)
	}

	var doc columnarDoc
	if err := json.Unmarshal(plain, &doc); err != nil {
		return nil, fmt.Errorf("decoding cache document: %w", err)
	}

	n := len(doc.Timestamp)
	if len(doc.Open) != n || len(doc.High) != n || len(doc.Low) != n ||
		len(doc.Close) != n || len(doc.Volume) != n {
		return nil, fmt.Errorf("cache columns have mismatched lengths")
	}

	series := make(candle.Series, n)
	for i := 0; i < n; i++ {
		series[i] = candle.Candle{
			Timestamp: time.UnixMilli(doc.Timestamp[i]).UTC(),
			Open:      doc.Open[i],
			High:      doc.High[i],
			Low:       doc.Low[i],
			Close:     doc.Close[i],
			Volume:    doc.Volume[i],
		}
	}
	return series, nil
}
