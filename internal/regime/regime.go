// Package regime labels market state from trend-strength indicators. The
// classification feeds strategy selection but stands on its own: given a
// bar series it answers "trending up, trending down, or ranging" with a
// confidence score.
package regime

import (
	"quantlab/internal/domain"
	"quantlab/internal/feature"
	"quantlab/internal/signal"
)

// Config tunes the classifier.
type Config struct {
	// Lookback is the slow moving-average window whose slope decides the
	// trend direction. Defaults to 60 bars.
	Lookback int

	// ADXThreshold is the directional strength above which the market is
	// considered trending. Defaults to 25.
	ADXThreshold float64

	// ADXCeiling calibrates the confidence score: confidence is ADX
	// normalized against this ceiling, clipped to [0, 1]. Defaults to 50.
	ADXCeiling float64
}

func (c Config) withDefaults() Config {
	if c.Lookback == 0 {
		c.Lookback = 60
	}
	if c.ADXThreshold == 0 {
		c.ADXThreshold = 25
	}
	if c.ADXCeiling == 0 {
		c.ADXCeiling = 50
	}
	return c
}

// Classifier labels market state from a bar series.
type Classifier struct {
	cfg Config
}

// New validates cfg and returns a Classifier.
func New(cfg Config) (*Classifier, error) {
	cfg = cfg.withDefaults()
	if cfg.Lookback < 2 {
		return nil, domain.NewConfigError("regime.lookback", "must be >= 2, got %d", cfg.Lookback)
	}
	if cfg.ADXThreshold <= 0 {
		return nil, domain.NewConfigError("regime.adx_threshold", "must be > 0, got %v", cfg.ADXThreshold)
	}
	if cfg.ADXCeiling <= cfg.ADXThreshold {
		return nil, domain.NewConfigError("regime.adx_ceiling", "must exceed the trend threshold %v, got %v", cfg.ADXThreshold, cfg.ADXCeiling)
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify computes the indicators it needs over bars and labels the final
// bar. The series must cover at least the lookback window.
func (c *Classifier) Classify(bars []domain.Bar) (domain.RegimeLabel, error) {
	fast := 20
	if fast >= c.cfg.Lookback {
		fast = c.cfg.Lookback / 2
	}
	set, err := feature.Compute(bars, feature.Config{
		Window:     c.cfg.Lookback,
		FastWindow: fast,
		SlowWindow: c.cfg.Lookback,
	})
	if err != nil {
		return domain.RegimeLabel{}, err
	}
	return c.LabelAt(set, set.Len()-1), nil
}

// LabelAt labels bar i of a precomputed feature set. Undefined strength or
// slope yields ranging with zero confidence rather than a guess.
func (c *Classifier) LabelAt(set *feature.Set, i int) domain.RegimeLabel {
	if i <= 0 || i >= set.Len() {
		return domain.RegimeLabel{Regime: domain.Ranging}
	}

	strength := set.ADX[i]
	slowNow, slowPrev := set.SlowMA[i], set.SlowMA[i-1]
	if !domain.IsDefined(strength) || !domain.IsDefined(slowNow) || !domain.IsDefined(slowPrev) {
		return domain.RegimeLabel{Regime: domain.Ranging}
	}

	confidence := strength / c.cfg.ADXCeiling
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	slope := slowNow - slowPrev
	label := domain.RegimeLabel{Regime: domain.Ranging, Confidence: confidence}
	if strength > c.cfg.ADXThreshold {
		switch {
		case slope > 0:
			label.Regime = domain.TrendingUp
		case slope < 0:
			label.Regime = domain.TrendingDown
		}
	}
	return label
}

// RecommendKind maps a regime to the strategy family that historically
// suits it: momentum in trends, mean reversion in ranges.
func RecommendKind(label domain.RegimeLabel) signal.Kind {
	switch label.Regime {
	case domain.TrendingUp, domain.TrendingDown:
		return signal.Momentum
	default:
		return signal.MeanReversion
	}
}
