// Package data loads and validates the bar series a backtest consumes.
// Providers are composable: the Alpaca provider talks to the market-data
// API, the cached provider layers a Parquet store in front of any other
// provider, and the slice provider serves fixed in-memory series for tests
// and offline work.
package data

import (
	"context"
	"sort"
	"time"

	"quantlab/internal/domain"
)

// Provider yields the daily bar series for a symbol over a date range.
type Provider interface {
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// SliceProvider serves bars from memory, filtered to the requested symbol
// and range.
type SliceProvider struct {
	Bars []domain.Bar
}

var _ Provider = (*SliceProvider)(nil)

// GetBars returns the in-memory bars for symbol inside [start, end], in
// timestamp order.
func (p *SliceProvider) GetBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var out []domain.Bar
	for _, b := range p.Bars {
		if b.Symbol != symbol {
			continue
		}
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if len(out) == 0 {
		return nil, domain.NewDataError(symbol, "no bars in range %s to %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return out, nil
}
