// Package store persists bar data and backtest results. Bar series live in
// Parquet files on disk so repeated runs skip the network; run summaries,
// trades and grid-search cells live in SQLite for querying across runs.
package store

import (
	"context"
	"time"

	"quantlab/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the cache.
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunRecord is one persisted backtest run.
type RunRecord struct {
	ID        int64
	Symbol    string
	Strategy  string
	Params    string // JSON-encoded parameter assignment
	CreatedAt time.Time
	Stats     domain.Stats
}

// GridCellRecord is one persisted grid-search cell.
type GridCellRecord struct {
	CellIndex int
	Params    string // JSON-encoded parameter assignment
	Ranked    bool
	Error     string
	Stats     domain.Stats
}

// RunStore persists backtest runs, their trades, and grid-search results.
type RunStore interface {
	// SaveRun inserts a run record and returns its assigned ID.
	SaveRun(ctx context.Context, run *RunRecord) (int64, error)

	// SaveTrades attaches the run's closed trades to a run ID.
	SaveTrades(ctx context.Context, runID int64, trades []domain.Trade) error

	// SaveGridCells attaches grid-search cells to a run ID.
	SaveGridCells(ctx context.Context, runID int64, cells []GridCellRecord) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, id int64) (*RunRecord, error)

	// ListRuns returns the most recent runs for a symbol, newest first. An
	// empty symbol matches every run.
	ListRuns(ctx context.Context, symbol string, limit int) ([]RunRecord, error)

	// ListTrades returns the trades of a run in entry order.
	ListTrades(ctx context.Context, runID int64) ([]domain.Trade, error)
}
