package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"liquidity-sniper/internal/candle"
)

const (
	metadataFile = "metadata.json"

	// maxPagesPerFetch bounds backwards pagination for a single sync.
	maxPagesPerFetch = 100

	// pageDelay is the cooperative pacing between paginated requests.
	pageDelay = 50 * time.Millisecond
)

// KlineSource is the upstream market-data dependency: one page of candles
// ending at endTime, at most limit rows.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int, endTime time.Time) ([]candle.Candle, error)
}

// Timeline is a portfolio candle map: timestamp -> symbol -> candle.
type Timeline map[time.Time]map[string]candle.Candle

// SortedTimestamps returns the timeline keys in ascending order.
func (t Timeline) SortedTimestamps() []time.Time {
	out := make([]time.Time, 0, len(t))
	for ts := range t {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// fileMeta records sync state for one symbol/interval cache file.
type fileMeta struct {
	LastSync    time.Time `json:"last_sync"`
	CandleCount int       `json:"candle_count"`
	DateRange   string    `json:"date_range"`
}

// Loader is the smart local data warehouse: incremental sync against the
// upstream source with a compressed columnar cache on disk.
type Loader struct {
	source   KlineSource
	cacheDir string
	logger   zerolog.Logger

	mu       sync.Mutex // guards metadata and the per-file lock map
	metadata map[string]fileMeta
	locks    map[string]*sync.Mutex
}

// NewLoader creates a loader rooted at cacheDir.
func NewLoader(source KlineSource, cacheDir string, logger zerolog.Logger) (*Loader, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root: %w", err)
	}
	l := &Loader{
		source:   source,
		cacheDir: cacheDir,
		logger:   logger.With().Str("component", "warehouse").Logger(),
		metadata: map[string]fileMeta{},
		locks:    map[string]*sync.Mutex{},
	}
	l.loadMetadata()
	return l, nil
}

func metaKey(symbol, interval string) string {
	return fmt.Sprintf("%s_%s", symbol, interval)
}

func (l *Loader) fileLock(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	return lock
}

// Load returns candles for [start, end] with strictly increasing unique
// timestamps, syncing the cache against the upstream as needed.
func (l *Loader) Load(ctx context.Context, symbol, interval string, start, end time.Time) (candle.Series, error) {
	step, err := candle.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	start = start.UTC()
	end = end.UTC()
	if end.Before(start) {
		return nil, fmt.Errorf("end %s before start %s", end, start)
	}

	key := metaKey(symbol, interval)
	lock := l.fileLock(key)
	lock.Lock()
	defer lock.Unlock()

	path := cachePath(l.cacheDir, symbol, interval)

	cached := l.readCache(path, symbol, interval)

	var fetched candle.Series
	switch {
	case len(cached) == 0:
		fetched, err = l.fetchRange(ctx, symbol, interval, start, end)
		if err != nil {
			return nil, err
		}
	default:
		cacheMin := cached[0].Timestamp
		cacheMax := cached[len(cached)-1].Timestamp

		if start.Before(cacheMin) {
			older, ferr := l.fetchRange(ctx, symbol, interval, start, cacheMin.Add(-step))
			if ferr != nil {
				return nil, ferr
			}
			fetched = append(fetched, older...)
		}
		if end.After(cacheMax.Add(step)) {
			newer, ferr := l.fetchRange(ctx, symbol, interval, cacheMax.Add(step), end)
			if ferr != nil {
				return nil, ferr
			}
			fetched = append(fetched, newer...)
		}
	}

	merged := cached
	if len(fetched) > 0 {
		merged = candle.Normalize(append(cached, fetched...))
		if err := writeCacheFile(path, merged); err != nil {
			l.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to persist cache file")
		} else {
			l.updateMetadata(key, merged)
		}
	}

	return merged.Slice(start, end), nil
}

// LoadPortfolio loads all symbols concurrently and merges them into a single
// timestamp-keyed timeline. Symbols with no candle at a given timestamp are
// simply absent from that inner map.
func (l *Loader) LoadPortfolio(ctx context.Context, symbols []string, interval string, start, end time.Time) (Timeline, error) {
	l.logger.Info().Int("symbols", len(symbols)).Str("interval", interval).Msg("loading portfolio timeline")

	results := make([]candle.Series, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			series, err := l.Load(gctx, sym, interval, start, end)
			if err != nil {
				return fmt.Errorf("loading %s: %w", sym, err)
			}
			results[i] = series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	timeline := Timeline{}
	for i, sym := range symbols {
		for _, c := range results[i] {
			inner, ok := timeline[c.Timestamp]
			if !ok {
				inner = map[string]candle.Candle{}
				timeline[c.Timestamp] = inner
			}
			inner[sym] = c
		}
	}

	l.logger.Info().Int("timestamps", len(timeline)).Msg("portfolio timeline ready")
	return timeline, nil
}

// fetchRange paginates backwards from end until start is covered. A transient
// upstream failure or an empty page stops pagination; whatever was collected
// is returned sorted and deduplicated.
func (l *Loader) fetchRange(ctx context.Context, symbol, interval string, start, end time.Time) (candle.Series, error) {
	var all []candle.Candle
	currentEnd := end

	for page := 0; page < maxPagesPerFetch && !currentEnd.Before(start); page++ {
		chunk, err := l.source.Klines(ctx, symbol, interval, binanceMaxPage, currentEnd)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn().Err(err).Str("symbol", symbol).Msg("upstream fetch failed, stopping pagination")
			break
		}
		if len(chunk) == 0 {
			break
		}

		for _, c := range chunk {
			if !c.Timestamp.Before(start) && !c.Timestamp.After(end) {
				all = append(all, c)
			}
		}

		first := chunk[0].Timestamp
		if !first.After(start) {
			break
		}
		currentEnd = first.Add(-time.Millisecond)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pageDelay):
		}
	}

	return candle.Normalize(all), nil
}

// binanceMaxPage mirrors the upstream page cap without importing the client.
const binanceMaxPage = 1000

// readCache loads the cache file, treating corruption as a miss.
func (l *Loader) readCache(path, symbol, interval string) candle.Series {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	series, err := readCacheFile(path)
	if err != nil {
		l.logger.Warn().Err(err).Str("symbol", symbol).Str("interval", interval).
			Msg("cache corrupted, refetching")
		return nil
	}
	return series
}

func (l *Loader) updateMetadata(key string, series candle.Series) {
	l.mu.Lock()
	defer l.mu.Unlock()

	meta := fileMeta{LastSync: time.Now().UTC(), CandleCount: len(series)}
	if len(series) > 0 {
		meta.DateRange = fmt.Sprintf("%s - %s",
			series[0].Timestamp.Format(time.RFC3339),
			series[len(series)-1].Timestamp.Format(time.RFC3339))
	}
	l.metadata[key] = meta
	l.saveMetadataLocked()
}

func (l *Loader) loadMetadata() {
	raw, err := os.ReadFile(filepath.Join(l.cacheDir, metadataFile))
	if err != nil {
		return
	}
	if err := json.Unmarshal(raw, &l.metadata); err != nil {
		l.logger.Warn().Err(err).Msg("failed to parse metadata, starting fresh")
		l.metadata = map[string]fileMeta{}
	}
}

func (l *Loader) saveMetadataLocked() {
	raw, err := json.MarshalIndent(l.metadata, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(l.cacheDir, metadataFile), raw, 0o644); err != nil {
		l.logger.Warn().Err(err).Msg("failed to save metadata")
	}
}

// ClearCache removes cache files. With both symbol and interval set only that
// file is removed; with only symbol, the symbol's directory; with neither,
// the whole cache root.
func (l *Loader) ClearCache(symbol, interval string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case symbol != "" && interval != "":
		if err := os.Remove(cachePath(l.cacheDir, symbol, interval)); err != nil && !os.IsNotExist(err) {
			return err
		}
		delete(l.metadata, metaKey(symbol, interval))
	case symbol != "":
		if err := os.RemoveAll(filepath.Join(l.cacheDir, symbol)); err != nil {
			return err
		}
		for key := range l.metadata {
			if len(key) > len(symbol) && key[:len(symbol)+1] == symbol+"_" {
				delete(l.metadata, key)
			}
		}
	default:
		if err := os.RemoveAll(l.cacheDir); err != nil {
			return err
		}
		if err := os.MkdirAll(l.cacheDir, 0o755); err != nil {
			return err
		}
		l.metadata = map[string]fileMeta{}
	}
	l.saveMetadataLocked()
	return nil
}

// CacheStats reports per-file sizes and sync metadata.
func (l *Loader) CacheStats() map[string]interface{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := map[string]interface{}{
		"cache_dir": l.cacheDir,
	}
	files := map[string]interface{}{}
	totalKB := 0.0

	entries, err := os.ReadDir(l.cacheDir)
	if err != nil {
		return stats
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		symbol := entry.Name()
		symDir := filepath.Join(l.cacheDir, symbol)
		inner, err := os.ReadDir(symDir)
		if err != nil {
			continue
		}
		for _, f := range inner {
			info, err := f.Info()
			if err != nil {
				continue
			}
			interval := f.Name()
			if len(interval) > len(cacheExt) && interval[len(interval)-len(cacheExt):] == cacheExt {
				interval = interval[:len(interval)-len(cacheExt)]
			}
			key := metaKey(symbol, interval)
			sizeKB := float64(info.Size()) / 1024.0
			totalKB += sizeKB
			files[key] = map[string]interface{}{
				"size_kb": sizeKB,
				"meta":    l.metadata[key],
			}
		}
	}
	stats["files"] = files
	stats["total_size_kb"] = totalKB
	return stats
}
