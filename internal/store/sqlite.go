package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"quantlab/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL,
	strategy    TEXT NOT NULL,
	params      TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	total_return  REAL NOT NULL,
	annual_return REAL NOT NULL,
	sharpe        REAL NOT NULL,
	max_drawdown  REAL NOT NULL,
	win_rate      REAL,
	trade_count   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol, created_at DESC);

CREATE TABLE IF NOT EXISTS trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      INTEGER NOT NULL REFERENCES runs(id),
	symbol      TEXT NOT NULL,
	direction   INTEGER NOT NULL,
	entry_date  INTEGER NOT NULL,
	exit_date   INTEGER NOT NULL,
	quantity    REAL NOT NULL,
	entry_price REAL NOT NULL,
	exit_price  REAL NOT NULL,
	realized_pl REAL NOT NULL,
	fees_paid   REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, entry_date);

CREATE TABLE IF NOT EXISTS grid_cells (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     INTEGER NOT NULL REFERENCES runs(id),
	cell_index INTEGER NOT NULL,
	params     TEXT NOT NULL,
	ranked     INTEGER NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	total_return  REAL NOT NULL,
	annual_return REAL NOT NULL,
	sharpe        REAL NOT NULL,
	max_drawdown  REAL NOT NULL,
	win_rate      REAL,
	trade_count   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_grid_cells_run ON grid_cells(run_id, cell_index);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, applies the
// schema, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// winRateToSQL maps the undefined win rate (no trades) to NULL.
func winRateToSQL(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func winRateFromSQL(v sql.NullFloat64) float64 {
	if !v.Valid {
		return domain.Undefined()
	}
	return v.Float64
}

// SaveRun inserts a run record and returns its assigned ID.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) (int64, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (symbol, strategy, params, created_at,
			total_return, annual_return, sharpe, max_drawdown, win_rate, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Symbol, run.Strategy, run.Params, run.CreatedAt.UnixMilli(),
		run.Stats.TotalReturn, run.Stats.AnnualReturn, run.Stats.Sharpe,
		run.Stats.MaxDrawdown, winRateToSQL(run.Stats.WinRate), run.Stats.TradeCount,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	run.ID = id
	return id, nil
}

// SaveTrades attaches the run's closed trades to a run ID inside a single
// transaction.
func (s *SQLiteStore) SaveTrades(ctx context.Context, runID int64, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trades (run_id, symbol, direction, entry_date, exit_date,
			quantity, entry_price, exit_price, realized_pl, fees_paid)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			runID, t.Symbol, int(t.Direction),
			t.EntryDate.UnixMilli(), t.ExitDate.UnixMilli(),
			t.Quantity, t.EntryPrice, t.ExitPrice, t.RealizedPL, t.FeesPaid,
		); err != nil {
			return fmt.Errorf("inserting trade: %w", err)
		}
	}
	return tx.Commit()
}

// SaveGridCells attaches grid-search cells to a run ID inside a single
// transaction.
func (s *SQLiteStore) SaveGridCells(ctx context.Context, runID int64, cells []GridCellRecord) error {
	if len(cells) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO grid_cells (run_id, cell_index, params, ranked, error,
			total_return, annual_return, sharpe, max_drawdown, win_rate, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range cells {
		if _, err := stmt.ExecContext(ctx,
			runID, c.CellIndex, c.Params, c.Ranked, c.Error,
			c.Stats.TotalReturn, c.Stats.AnnualReturn, c.Stats.Sharpe,
			c.Stats.MaxDrawdown, winRateToSQL(c.Stats.WinRate), c.Stats.TradeCount,
		); err != nil {
			return fmt.Errorf("inserting grid cell %d: %w", c.CellIndex, err)
		}
	}
	return tx.Commit()
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id int64) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, strategy, params, created_at,
			total_return, annual_return, sharpe, max_drawdown, win_rate, trade_count
		FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %d not found", id)
	}
	return run, err
}

// ListRuns returns the most recent runs for a symbol, newest first. An empty
// symbol matches every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, symbol string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, strategy, params, created_at,
			total_return, annual_return, sharpe, max_drawdown, win_rate, trade_count
		FROM runs
		WHERE (? = '' OR symbol = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, symbol, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListTrades returns the trades of a run in entry order.
func (s *SQLiteStore) ListTrades(ctx context.Context, runID int64) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, direction, entry_date, exit_date,
			quantity, entry_price, exit_price, realized_pl, fees_paid
		FROM trades WHERE run_id = ? ORDER BY entry_date, id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var dir int
		var entryMs, exitMs int64
		if err := rows.Scan(&t.Symbol, &dir, &entryMs, &exitMs,
			&t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.RealizedPL, &t.FeesPaid); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(dir)
		t.EntryDate = time.UnixMilli(entryMs).UTC()
		t.ExitDate = time.UnixMilli(exitMs).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var run RunRecord
	var createdMs int64
	var winRate sql.NullFloat64
	if err := row.Scan(&run.ID, &run.Symbol, &run.Strategy, &run.Params, &createdMs,
		&run.Stats.TotalReturn, &run.Stats.AnnualReturn, &run.Stats.Sharpe,
		&run.Stats.MaxDrawdown, &winRate, &run.Stats.TradeCount); err != nil {
		return nil, err
	}
	run.CreatedAt = time.UnixMilli(createdMs).UTC()
	run.Stats.WinRate = winRateFromSQL(winRate)
	return &run, nil
}
