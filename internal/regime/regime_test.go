package regime

import (
	"errors"
	"math"
	"testing"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/signal"
)

func synthBars(n int, price func(i int) float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	base := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := price(i)
		bars[i] = domain.Bar{
			Symbol:    "SYN",
			Timestamp: base.AddDate(0, 0, i),
			Open:      c,
			High:      c * 1.005,
			Low:       c * 0.995,
			Close:     c,
		}
	}
	return bars
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{}); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cases := []Config{
		{Lookback: 1},
		{ADXThreshold: -5},
		{ADXThreshold: 30, ADXCeiling: 20},
	}
	for _, cfg := range cases {
		_, err := New(cfg)
		var ce *domain.ConfigError
		if !errors.As(err, &ce) {
			t.Errorf("New(%+v) error = %v, want ConfigError", cfg, err)
		}
	}
}

func TestClassifyUptrend(t *testing.T) {
	c, err := New(Config{Lookback: 30})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bars := synthBars(120, func(i int) float64 { return 100 + 0.8*float64(i) })
	label, err := c.Classify(bars)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if label.Regime != domain.TrendingUp {
		t.Errorf("regime = %v, want trending_up", label.Regime)
	}
	if label.Confidence <= 0 || label.Confidence > 1 {
		t.Errorf("confidence = %v, want in (0, 1]", label.Confidence)
	}
	if RecommendKind(label) != signal.Momentum {
		t.Errorf("RecommendKind(trending) = %v, want momentum", RecommendKind(label))
	}
}

func TestClassifyDowntrend(t *testing.T) {
	c, err := New(Config{Lookback: 30})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bars := synthBars(120, func(i int) float64 { return 200 - 0.8*float64(i) })
	label, err := c.Classify(bars)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if label.Regime != domain.TrendingDown {
		t.Errorf("regime = %v, want trending_down", label.Regime)
	}
}

func TestClassifyRanging(t *testing.T) {
	c, err := New(Config{Lookback: 30})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A tight oscillation has directional movement cancelling out, so the
	// strength indicator stays under the trend threshold.
	bars := synthBars(120, func(i int) float64 {
		return 100 + 0.5*math.Sin(float64(i))
	})
	label, err := c.Classify(bars)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if label.Regime != domain.Ranging {
		t.Errorf("regime = %v, want ranging", label.Regime)
	}
	if RecommendKind(label) != signal.MeanReversion {
		t.Errorf("RecommendKind(ranging) = %v, want mean_reversion", RecommendKind(label))
	}
}

func TestClassifyInsufficientHistory(t *testing.T) {
	c, err := New(Config{Lookback: 60})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bars := synthBars(10, func(i int) float64 { return 100 })
	if _, err := c.Classify(bars); err == nil {
		t.Error("Classify on 10 bars with lookback 60 should fail")
	}
}
