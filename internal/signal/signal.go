// Package signal turns indicator series into per-bar position intents.
// Strategy selection is a closed tagged variant: every Kind carries its own
// validated parameter struct and is dispatched with an exhaustive switch,
// never by name lookup.
package signal

import (
	"fmt"

	"quantlab/internal/domain"
	"quantlab/internal/feature"
)

// Kind enumerates the supported strategy families.
type Kind int

const (
	MeanReversion Kind = iota
	Momentum
)

// String returns the snake_case strategy name.
func (k Kind) String() string {
	switch k {
	case MeanReversion:
		return "mean_reversion"
	case Momentum:
		return "momentum"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a strategy name to its Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "mean_reversion":
		return MeanReversion, nil
	case "momentum":
		return Momentum, nil
	default:
		return 0, domain.NewConfigError("strategy.kind", "unknown strategy %q", name)
	}
}

// MeanReversionParams configures the z-score mean-reversion strategy.
type MeanReversionParams struct {
	// Window is the z-score lookback.
	Window int
	// EntryThreshold opens a position when |z| exceeds it.
	EntryThreshold float64
	// ExitThreshold closes toward flat once z crosses back inside it.
	// Must be smaller than EntryThreshold.
	ExitThreshold float64
	// AllowShort enables short entries on z > EntryThreshold.
	AllowShort bool
}

// MomentumParams configures the moving-average momentum strategy.
type MomentumParams struct {
	FastWindow int
	SlowWindow int
	// Hysteresis is a dead band around zero on (fastMA - slowMA): while
	// the difference stays inside the band the previous state is kept,
	// which suppresses rapid flipping.
	Hysteresis float64
	// AllowShort enables short positions on a negative MA difference;
	// when false a bearish signal maps to flat.
	AllowShort bool
}

// Config is the tagged strategy variant. Exactly the params struct matching
// Kind is consulted; the other is ignored.
type Config struct {
	Kind          Kind
	MeanReversion MeanReversionParams
	Momentum      MomentumParams
}

// Generator produces a position-intent series for one validated strategy
// configuration.
type Generator struct {
	cfg Config
}

// New validates the parameter schema for cfg.Kind and returns a Generator.
// Invalid thresholds or windows fail fast with a ConfigError.
func New(cfg Config) (*Generator, error) {
	switch cfg.Kind {
	case MeanReversion:
		p := cfg.MeanReversion
		if p.Window <= 1 {
			return nil, domain.NewConfigError("mean_reversion.window", "must be >= 2, got %d", p.Window)
		}
		if p.EntryThreshold <= 0 {
			return nil, domain.NewConfigError("mean_reversion.entry_threshold", "must be > 0, got %v", p.EntryThreshold)
		}
		if p.ExitThreshold < 0 {
			return nil, domain.NewConfigError("mean_reversion.exit_threshold", "must be >= 0, got %v", p.ExitThreshold)
		}
		if p.ExitThreshold >= p.EntryThreshold {
			return nil, domain.NewConfigError("mean_reversion.exit_threshold", "must be nearer zero than entry threshold %v, got %v", p.EntryThreshold, p.ExitThreshold)
		}
	case Momentum:
		p := cfg.Momentum
		if p.FastWindow <= 0 || p.SlowWindow <= 0 {
			return nil, domain.NewConfigError("momentum.windows", "must be positive, got %d/%d", p.FastWindow, p.SlowWindow)
		}
		if p.FastWindow >= p.SlowWindow {
			return nil, domain.NewConfigError("momentum.windows", "fast window %d must be smaller than slow window %d", p.FastWindow, p.SlowWindow)
		}
		if p.Hysteresis < 0 {
			return nil, domain.NewConfigError("momentum.hysteresis", "must be >= 0, got %v", p.Hysteresis)
		}
	default:
		return nil, domain.NewConfigError("strategy.kind", "unknown kind %d", int(cfg.Kind))
	}
	return &Generator{cfg: cfg}, nil
}

// Kind returns the strategy family this generator was built for.
func (g *Generator) Kind() Kind { return g.cfg.Kind }

// FeatureConfig derives the indicator windows this strategy needs. Mean
// reversion uses its own z-score window with the classifier's default MA
// pair; momentum reuses its slow window for the statistics lookback.
func (g *Generator) FeatureConfig(periodsPerYear float64) feature.Config {
	switch g.cfg.Kind {
	case Momentum:
		return feature.Config{
			Window:         g.cfg.Momentum.SlowWindow,
			FastWindow:     g.cfg.Momentum.FastWindow,
			SlowWindow:     g.cfg.Momentum.SlowWindow,
			PeriodsPerYear: periodsPerYear,
		}
	default:
		return feature.Config{
			Window:         g.cfg.MeanReversion.Window,
			FastWindow:     20,
			SlowWindow:     60,
			PeriodsPerYear: periodsPerYear,
		}
	}
}

// Generate walks the feature set bar by bar and returns one intent per bar.
// Undefined features mean "no signal": the previous state is retained, and
// the series starts flat. A value exactly at a threshold boundary also
// retains the previous state (all comparisons are strict), so an intent
// never flips on an exact touch.
func (g *Generator) Generate(set *feature.Set) []domain.Direction {
	out := make([]domain.Direction, set.Len())
	state := domain.Flat

	for i := 0; i < set.Len(); i++ {
		switch g.cfg.Kind {
		case MeanReversion:
			state = g.stepMeanReversion(state, set.ZScore[i])
		case Momentum:
			state = g.stepMomentum(state, set.FastMA[i], set.SlowMA[i])
		}
		out[i] = state
	}
	return out
}

func (g *Generator) stepMeanReversion(state domain.Direction, z float64) domain.Direction {
	if !domain.IsDefined(z) {
		return state
	}
	p := g.cfg.MeanReversion

	switch state {
	case domain.Flat:
		if z < -p.EntryThreshold {
			return domain.Long
		}
		if p.AllowShort && z > p.EntryThreshold {
			return domain.Short
		}
	case domain.Long:
		if p.AllowShort && z > p.EntryThreshold {
			return domain.Short
		}
		if z > -p.ExitThreshold {
			return domain.Flat
		}
	case domain.Short:
		if z < -p.EntryThreshold {
			return domain.Long
		}
		if z < p.ExitThreshold {
			return domain.Flat
		}
	}
	return state
}

func (g *Generator) stepMomentum(state domain.Direction, fast, slow float64) domain.Direction {
	if !domain.IsDefined(fast) || !domain.IsDefined(slow) {
		return state
	}
	p := g.cfg.Momentum
	diff := fast - slow

	if diff > p.Hysteresis {
		return domain.Long
	}
	if diff < -p.Hysteresis {
		if p.AllowShort {
			return domain.Short
		}
		return domain.Flat
	}
	return state
}
