package data

import (
	"context"
	"log/slog"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

var _ Provider = (*CachedProvider)(nil)

// CachedProvider layers a Parquet bar cache in front of another provider.
// A read is served from the cache when it covers the requested range;
// otherwise the upstream provider is consulted once and its response is
// written through.
type CachedProvider struct {
	upstream Provider
	cache    store.BarStore
	log      *slog.Logger
}

// NewCachedProvider wraps upstream with the given bar cache.
func NewCachedProvider(upstream Provider, cache store.BarStore) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		cache:    cache,
		log:      slog.Default().With("provider", "cached"),
	}
}

// GetBars serves from the cache when possible and fetches through otherwise.
func (p *CachedProvider) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	cached, err := p.cache.ReadBars(ctx, symbol, start, end)
	if err == nil && covers(cached, start, end) {
		p.log.Debug("cache hit", "symbol", symbol, "count", len(cached))
		return cached, nil
	}

	bars, err := p.upstream.GetBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if werr := p.cache.WriteBars(ctx, bars); werr != nil {
		// A cache write failure degrades to uncached operation.
		p.log.Warn("cache write failed", "symbol", symbol, "err", werr)
	}
	return bars, nil
}

// covers reports whether the cached series plausibly spans [start, end]:
// non-empty, first bar within a gap tolerance of start, and last bar at or
// past the final weekday session before end.
func covers(bars []domain.Bar, start, end time.Time) bool {
	if len(bars) == 0 {
		return false
	}
	tolerance := time.Duration(DefaultMaxGapDays) * 24 * time.Hour
	if bars[0].Timestamp.Sub(start) > tolerance {
		return false
	}
	lastWanted := end
	if !util.IsTradingDay(lastWanted) {
		lastWanted = util.PrevTradingDay(lastWanted)
	}
	return lastWanted.Sub(bars[len(bars)-1].Timestamp) <= tolerance
}
