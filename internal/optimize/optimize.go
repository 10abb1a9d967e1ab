// Package optimize drives repeated backtest runs across a parameter grid
// and ranks the results. Each cell is a pure function of (series, params),
// so cells fan out over a bounded worker pool with no shared mutable state;
// determinism comes from sorting after all cells complete, never from
// completion order.
package optimize

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"quantlab/internal/domain"
)

// Metric names a rankable performance statistic.
type Metric string

const (
	MetricSharpe       Metric = "sharpe"
	MetricTotalReturn  Metric = "total_return"
	MetricAnnualReturn Metric = "annual_return"
	MetricMaxDrawdown  Metric = "max_drawdown"
	MetricWinRate      Metric = "win_rate"
)

// ParseMetric validates a metric name.
func ParseMetric(name string) (Metric, error) {
	switch Metric(name) {
	case MetricSharpe, MetricTotalReturn, MetricAnnualReturn, MetricMaxDrawdown, MetricWinRate:
		return Metric(name), nil
	default:
		return "", domain.NewConfigError("optimizer.metric", "unknown metric %q", name)
	}
}

// score extracts the metric oriented so that higher is always better.
func score(s domain.Stats, m Metric) float64 {
	switch m {
	case MetricTotalReturn:
		return s.TotalReturn
	case MetricAnnualReturn:
		return s.AnnualReturn
	case MetricMaxDrawdown:
		return -s.MaxDrawdown
	case MetricWinRate:
		return s.WinRate
	default:
		return s.Sharpe
	}
}

// Axis is one grid dimension: an ordered candidate list for a named
// parameter.
type Axis struct {
	Name   string
	Values []float64
}

// Grid is an ordered set of axes. Cell enumeration order is the cartesian
// product with the last axis varying fastest, which fixes the final
// tie-break order.
type Grid []Axis

// Size returns the number of cells in the grid.
func (g Grid) Size() int {
	n := 1
	for _, a := range g {
		n *= len(a.Values)
	}
	return n
}

// Params is one grid cell's parameter assignment.
type Params map[string]float64

// Combinations expands the grid into every cell's parameter assignment, in
// deterministic grid order.
func (g Grid) Combinations() []Params {
	out := make([]Params, 0, g.Size())
	idx := make([]int, len(g))
	for {
		p := make(Params, len(g))
		for i, a := range g {
			p[a.Name] = a.Values[idx[i]]
		}
		out = append(out, p)

		// Advance the odometer, last axis fastest.
		i := len(g) - 1
		for i >= 0 {
			idx[i]++
			if idx[i] < len(g[i].Values) {
				break
			}
			idx[i] = 0
			i--
		}
		if i < 0 {
			return out
		}
	}
}

// Evaluator runs the full feature→signal→simulate chain for one cell.
type Evaluator func(ctx context.Context, params Params) (domain.Stats, error)

// Config parameterizes a grid search.
type Config struct {
	Grid Grid

	// Metric ranks the results, descending (drawdown is inverted so lower
	// is better). Defaults to sharpe.
	Metric Metric

	// TieBreak orders cells whose target metric ties. Defaults to
	// max_drawdown. A remaining tie falls back to grid order.
	TieBreak Metric

	// Workers bounds the concurrent cell evaluations. Defaults to 4.
	Workers int
}

// CellResult is the outcome of one grid cell.
type CellResult struct {
	Index  int // position in grid enumeration order
	Params Params
	Stats  domain.Stats
	Err    error

	// Ranked is false for cells that errored or produced zero trades;
	// they stay in the log but are excluded from the ranking.
	Ranked bool
}

// Result holds every evaluated cell plus the ranked view.
type Result struct {
	// Cells lists evaluated cells in grid order. On cancellation it holds
	// only the cells that completed.
	Cells []CellResult

	// Ranked is sorted best-first by the configured metric.
	Ranked []CellResult
}

// Search evaluates every grid cell through ev and ranks the outcomes.
// Cancelling ctx stops scheduling new cells; the partial results collected
// so far are returned without error. Per-cell failures are logged and
// excluded from the ranking.
func Search(ctx context.Context, ev Evaluator, cfg Config, log *slog.Logger) (*Result, error) {
	if len(cfg.Grid) == 0 {
		return nil, domain.NewConfigError("optimizer.grid", "grid has no axes")
	}
	for _, a := range cfg.Grid {
		if a.Name == "" {
			return nil, domain.NewConfigError("optimizer.grid", "axis with empty name")
		}
		if len(a.Values) == 0 {
			return nil, domain.NewConfigError("optimizer.grid", "axis %q has no candidate values", a.Name)
		}
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricSharpe
	}
	if cfg.TieBreak == "" {
		cfg.TieBreak = MetricMaxDrawdown
	}
	if _, err := ParseMetric(string(cfg.Metric)); err != nil {
		return nil, err
	}
	if _, err := ParseMetric(string(cfg.TieBreak)); err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	if log == nil {
		log = slog.Default()
	}

	cells := cfg.Grid.Combinations()
	results := make([]CellResult, len(cells))
	done := make([]bool, len(cells))

	jobs := make(chan int, len(cells))
	for i := range cells {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	var mu sync.Mutex

	if workers > len(cells) {
		workers = len(cells)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				// Cooperative cancellation between cells.
				if ctx.Err() != nil {
					return
				}

				stats, err := ev(ctx, cells[i])
				cr := CellResult{Index: i, Params: cells[i], Stats: stats, Err: err}
				switch {
				case err != nil:
					log.Warn("grid cell failed", "cell", i, "params", cells[i], "err", err)
				case stats.TradeCount == 0:
					log.Debug("grid cell produced no trades", "cell", i, "params", cells[i])
				default:
					cr.Ranked = true
				}

				mu.Lock()
				results[i] = cr
				done[i] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	res := &Result{}
	for i := range results {
		if done[i] {
			res.Cells = append(res.Cells, results[i])
		}
	}

	for _, c := range res.Cells {
		if c.Ranked {
			res.Ranked = append(res.Ranked, c)
		}
	}
	sort.SliceStable(res.Ranked, func(a, b int) bool {
		ca, cb := res.Ranked[a], res.Ranked[b]
		sa, sb := score(ca.Stats, cfg.Metric), score(cb.Stats, cfg.Metric)
		if sa != sb {
			return sa > sb
		}
		ta, tb := score(ca.Stats, cfg.TieBreak), score(cb.Stats, cfg.TieBreak)
		if ta != tb {
			return ta > tb
		}
		return ca.Index < cb.Index
	})

	return res, nil
}
