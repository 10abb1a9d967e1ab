// Package backtest chains the stages of a single strategy evaluation:
// indicator computation, signal generation, and trade simulation. The
// Runner is stateless; every call is a pure function of the bar series and
// the configuration, which is what makes grid search safe to parallelize.
package backtest

import (
	"context"
	"log/slog"

	"quantlab/internal/domain"
	"quantlab/internal/feature"
	"quantlab/internal/optimize"
	"quantlab/internal/signal"
	"quantlab/internal/sim"
	"quantlab/internal/sizing"
)

// Config is the full parameter set for one backtest run.
type Config struct {
	Strategy signal.Config

	InitialCash    float64
	FeeRate        float64
	ExecutionLag   int
	PeriodsPerYear float64
	AllowShort     bool

	// MaxFraction caps the per-trade capital fraction. Defaults to 1.
	MaxFraction float64

	// KellySizing switches from all-in sizing to fractional Kelly fed by
	// the realized trade history.
	KellySizing bool

	// KellyFallback is the fraction used before enough trades accumulate
	// for a Kelly estimate. Defaults to 0.1 when KellySizing is on.
	KellyFallback float64
}

func (c Config) withDefaults() Config {
	if c.MaxFraction == 0 {
		c.MaxFraction = 1
	}
	if c.KellySizing && c.KellyFallback == 0 {
		c.KellyFallback = 0.1
	}
	return c
}

func (c Config) simConfig() sim.Config {
	sc := sim.Config{
		InitialCash:    c.InitialCash,
		FeeRate:        c.FeeRate,
		ExecutionLag:   c.ExecutionLag,
		PeriodsPerYear: c.PeriodsPerYear,
		AllowShort:     c.AllowShort,
		MaxFraction:    c.MaxFraction,
	}
	if c.KellySizing {
		sc.Sizer = sim.KellySizer(c.MaxFraction, c.KellyFallback)
	}
	return sc
}

// RunResult bundles the intermediate and final artifacts of one run.
type RunResult struct {
	Features   *feature.Set
	Intents    []domain.Direction
	Simulation *sim.Result
}

// Stats is a convenience accessor for the run's performance summary.
func (r *RunResult) Stats() domain.Stats { return r.Simulation.Stats }

// Run executes the feature, signal and simulation stages over bars.
// Configuration problems surface as ConfigError before any stage touches
// the data.
func Run(bars []domain.Bar, cfg Config) (*RunResult, error) {
	cfg = cfg.withDefaults()

	gen, err := signal.New(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	set, err := feature.Compute(bars, gen.FeatureConfig(cfg.PeriodsPerYear))
	if err != nil {
		return nil, err
	}
	intents := gen.Generate(set)

	simRes, err := sim.Run(bars, intents, cfg.simConfig())
	if err != nil {
		return nil, err
	}
	return &RunResult{Features: set, Intents: intents, Simulation: simRes}, nil
}

// ---

// ApplyParam overrides one named strategy or simulation parameter on cfg.
// The name set is closed; an unknown name is a ConfigError so that a typo
// in a grid axis cannot silently no-op across every cell.
func ApplyParam(cfg *Config, name string, v float64) error {
	switch name {
	case "window":
		cfg.Strategy.MeanReversion.Window = int(v)
	case "entry_threshold":
		cfg.Strategy.MeanReversion.EntryThreshold = v
	case "exit_threshold":
		cfg.Strategy.MeanReversion.ExitThreshold = v
	case "fast_window":
		cfg.Strategy.Momentum.FastWindow = int(v)
	case "slow_window":
		cfg.Strategy.Momentum.SlowWindow = int(v)
	case "hysteresis":
		cfg.Strategy.Momentum.Hysteresis = v
	case "fee_rate":
		cfg.FeeRate = v
	case "max_fraction":
		cfg.MaxFraction = v
	default:
		return domain.NewConfigError("optimizer.grid", "unknown parameter %q", name)
	}
	return nil
}

// Optimize grid-searches strategy parameters over bars. The base
// configuration and every axis name are validated before any cell is
// simulated, so a shared configuration problem fails the whole search fast
// instead of producing a grid of identical per-cell errors.
func Optimize(ctx context.Context, bars []domain.Bar, base Config, ocfg optimize.Config, log *slog.Logger) (*optimize.Result, error) {
	for _, axis := range ocfg.Grid {
		if len(axis.Values) == 0 {
			continue // Search reports the empty axis
		}
		probe := base
		if err := ApplyParam(&probe, axis.Name, axis.Values[0]); err != nil {
			return nil, err
		}
	}
	// One dry validation of the base config with the first cell applied.
	if combos := ocfg.Grid.Combinations(); len(combos) > 0 {
		probe := base
		for name, v := range combos[0] {
			if err := ApplyParam(&probe, name, v); err != nil {
				return nil, err
			}
		}
		if _, err := signal.New(probe.Strategy); err != nil {
			return nil, err
		}
	}
	if base.InitialCash <= 0 {
		return nil, domain.NewConfigError("backtest.initial_cash", "must be > 0, got %v", base.InitialCash)
	}
	if base.FeeRate < 0 || base.FeeRate >= 1 {
		return nil, domain.NewConfigError("backtest.fee_rate", "must be in [0, 1), got %v", base.FeeRate)
	}

	ev := func(_ context.Context, params optimize.Params) (domain.Stats, error) {
		cfg := base
		for name, v := range params {
			if err := ApplyParam(&cfg, name, v); err != nil {
				return domain.Stats{}, err
			}
		}
		res, err := Run(bars, cfg)
		if err != nil {
			return domain.Stats{}, err
		}
		return res.Stats(), nil
	}
	return optimize.Search(ctx, ev, ocfg, log)
}

// SummarizeTrades exposes the realized trade statistics of a run for
// position-sizing reports.
func SummarizeTrades(r *RunResult) sizing.TradeStatistics {
	return sizing.Summarize(r.Simulation.Trades)
}
