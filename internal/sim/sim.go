// Package sim replays a position-intent series bar by bar into cash,
// holdings, and realized trades, then summarizes the run. The engine is a
// pure function of (bars, intents, config): no I/O, no shared state, so
// runs are bit-identical and safe to fan out across goroutines.
package sim

import (
	"math"

	"quantlab/internal/domain"
	"quantlab/internal/sizing"
)

// Sizer maps the running closed-trade statistics to a capital fraction for
// the next entry. It is consulted at every position open.
type Sizer func(stats sizing.TradeStatistics) float64

// FixedSizer always commits the same fraction of equity.
func FixedSizer(fraction float64) Sizer {
	return func(sizing.TradeStatistics) float64 { return fraction }
}

// KellySizer sizes entries by fractional Kelly over the trades closed so
// far, falling back to fallback before any trade has closed.
func KellySizer(maxFraction, fallback float64) Sizer {
	return func(stats sizing.TradeStatistics) float64 {
		if stats.NumTrades == 0 {
			return fallback
		}
		return sizing.Kelly(stats, maxFraction)
	}
}

// Config parameterizes a simulation run.
type Config struct {
	// InitialCash is the starting portfolio value. Must be > 0.
	InitialCash float64

	// FeeRate is charged on the traded notional on every open and close.
	// Must be in [0, 1).
	FeeRate float64

	// ExecutionLag delays intents by this many bars: a signal derived from
	// bar t acts at bar t+lag. Defaults to 1 (never act on the bar that
	// produced the signal).
	ExecutionLag int

	// PeriodsPerYear annualizes returns and Sharpe. Defaults to 252.
	PeriodsPerYear float64

	// AllowShort permits short positions. A short intent with this off is
	// a SimulationError.
	AllowShort bool

	// MaxFraction caps the capital fraction per position. Defaults to 1.
	MaxFraction float64

	// Sizer decides the entry fraction. Defaults to FixedSizer(MaxFraction).
	Sizer Sizer
}

func (c Config) withDefaults() Config {
	if c.ExecutionLag == 0 {
		c.ExecutionLag = 1
	}
	if c.PeriodsPerYear == 0 {
		c.PeriodsPerYear = 252
	}
	if c.MaxFraction == 0 {
		c.MaxFraction = 1
	}
	if c.Sizer == nil {
		c.Sizer = FixedSizer(c.MaxFraction)
	}
	return c
}

// Result is the full simulation output: every closed trade, the per-bar
// equity curve, and the immutable performance summary.
type Result struct {
	Trades []domain.Trade
	Equity []domain.EquityPoint
	Stats  domain.Stats
}

// position is the engine's mutable per-run state.
type position struct {
	direction domain.Direction
	quantity  float64 // always positive; direction carries the sign
	entry     float64
	entryFee  float64
	entryBar  int
}

// Run replays intents over bars. Both slices must have equal length; the
// intent at index t is acted on at bar t+ExecutionLag, positions are marked
// to each bar's close, and any open position is force-closed on the final
// bar.
func Run(bars []domain.Bar, intents []domain.Direction, cfg Config) (*Result, error) {
	cfg = cfg.withDefaults()
	if cfg.InitialCash <= 0 {
		return nil, domain.NewConfigError("backtest.initial_cash", "must be > 0, got %v", cfg.InitialCash)
	}
	if cfg.FeeRate < 0 || cfg.FeeRate >= 1 {
		return nil, domain.NewConfigError("backtest.fee_rate", "must be in [0, 1), got %v", cfg.FeeRate)
	}
	if cfg.ExecutionLag < 0 {
		return nil, domain.NewConfigError("backtest.execution_lag", "must be >= 0, got %d", cfg.ExecutionLag)
	}
	if cfg.MaxFraction < 0 || cfg.MaxFraction > 1 {
		return nil, domain.NewConfigError("backtest.max_fraction", "must be in [0, 1], got %v", cfg.MaxFraction)
	}
	if len(bars) == 0 {
		return nil, domain.NewDataError("", "empty bar series")
	}
	if len(intents) != len(bars) {
		return nil, domain.NewDataError(bars[0].Symbol, "intent series length %d does not match bar series length %d", len(intents), len(bars))
	}

	res := &Result{
		Trades: []domain.Trade{},
		Equity: make([]domain.EquityPoint, 0, len(bars)),
	}

	cash := cfg.InitialCash
	var pos position

	// Long positions move their notional out of cash at the open; shorts
	// are margin-style, cash only pays fees and collects the price move at
	// the close. Both mark consistently via markValue.
	closeAt := func(t int, price float64) {
		notional := pos.quantity * price
		fee := notional * cfg.FeeRate

		var pnl float64
		if pos.direction == domain.Long {
			pnl = (price - pos.entry) * pos.quantity
			cash += notional - fee
		} else {
			pnl = (pos.entry - price) * pos.quantity
			cash += pnl - fee
		}

		res.Trades = append(res.Trades, domain.Trade{
			Symbol:     bars[t].Symbol,
			Direction:  pos.direction,
			EntryDate:  bars[pos.entryBar].Timestamp,
			ExitDate:   bars[t].Timestamp,
			Quantity:   pos.quantity,
			EntryPrice: pos.entry,
			ExitPrice:  price,
			RealizedPL: pnl - pos.entryFee - fee,
			FeesPaid:   pos.entryFee + fee,
		})
		pos = position{}
	}

	for t := range bars {
		price := bars[t].Close

		// Intents act with the configured lag; before the lag fills the
		// engine stays flat rather than peeking at future-derived signals.
		intent := domain.Flat
		if t >= cfg.ExecutionLag {
			intent = intents[t-cfg.ExecutionLag]
		}
		if intent == domain.Short && !cfg.AllowShort {
			return nil, &domain.SimulationError{Bar: t, Reason: "short intent with short selling disabled"}
		}

		if intent != pos.direction {
			if pos.direction != domain.Flat {
				closeAt(t, price)
			}
			// No new positions on the final bar; it would be force-closed
			// at the same price and only burn fees.
			if intent != domain.Flat && t < len(bars)-1 {
				equity := cash
				fraction := clampFraction(cfg.Sizer(sizing.Summarize(res.Trades)), cfg.MaxFraction)
				budget := equity * fraction
				if budget > 0 && price > 0 {
					// Sized so notional plus the entry fee fits the budget.
					qty := budget / (price * (1 + cfg.FeeRate))
					notional := qty * price
					fee := notional * cfg.FeeRate
					if intent == domain.Long {
						cash -= notional + fee
					} else {
						cash -= fee
					}
					pos = position{
						direction: intent,
						quantity:  qty,
						entry:     price,
						entryFee:  fee,
						entryBar:  t,
					}
				}
			}
		}

		// Force-close at the end of the series.
		if t == len(bars)-1 && pos.direction != domain.Flat {
			closeAt(t, price)
		}

		equity := cash + markValue(pos, price)
		if math.IsNaN(equity) || math.IsInf(equity, 0) {
			return nil, &domain.NumericError{Where: "equity curve"}
		}
		res.Equity = append(res.Equity, domain.EquityPoint{Date: bars[t].Timestamp, Value: equity})
	}

	res.Stats = computeStats(res, cfg)
	return res, nil
}

// markValue is the liquidation value of the open position at price.
func markValue(pos position, price float64) float64 {
	switch pos.direction {
	case domain.Long:
		return pos.quantity * price
	case domain.Short:
		return pos.quantity * (pos.entry - price)
	default:
		return 0
	}
}

func clampFraction(f, max float64) float64 {
	if f < 0 {
		return 0
	}
	if f > max {
		return max
	}
	return f
}

// computeStats derives the performance summary from the simulation output.
func computeStats(res *Result, cfg Config) domain.Stats {
	stats := domain.Stats{TradeCount: len(res.Trades)}

	last := res.Equity[len(res.Equity)-1].Value
	stats.TotalReturn = last/cfg.InitialCash - 1

	n := float64(len(res.Equity))
	stats.AnnualReturn = math.Pow(1+stats.TotalReturn, cfg.PeriodsPerYear/n) - 1

	// Per-bar returns off the equity curve.
	rets := make([]float64, 0, len(res.Equity)-1)
	for i := 1; i < len(res.Equity); i++ {
		prev := res.Equity[i-1].Value
		if prev == 0 {
			continue
		}
		rets = append(rets, res.Equity[i].Value/prev-1)
	}
	stats.Sharpe = sharpe(rets, cfg.PeriodsPerYear)

	stats.MaxDrawdown = maxDrawdown(res.Equity)

	if len(res.Trades) == 0 {
		stats.WinRate = domain.Undefined()
	} else {
		wins := 0
		for _, tr := range res.Trades {
			if tr.RealizedPL > 0 {
				wins++
			}
		}
		stats.WinRate = float64(wins) / float64(len(res.Trades))
	}
	return stats
}

// sharpe is mean/std of per-bar returns annualized by sqrt(ppy), defined
// as 0 when the return volatility vanishes.
func sharpe(rets []float64, periodsPerYear float64) float64 {
	if len(rets) < 2 {
		return 0
	}
	var sum float64
	for _, r := range rets {
		sum += r
	}
	mean := sum / float64(len(rets))

	var ss float64
	for _, r := range rets {
		d := r - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(rets)-1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// maxDrawdown is the largest peak-to-trough decline as a fraction of the
// peak, always reported nonnegative.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	peak := curve[0].Value
	var maxDD float64
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			if dd := (peak - p.Value) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
