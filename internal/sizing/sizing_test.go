package sizing

import (
	"math"
	"testing"
	"time"

	"quantlab/internal/domain"
)

func TestKellyReferenceValue(t *testing.T) {
	// Documented reference: p=0.6, avg win 3%, avg loss 2% → 8.33%.
	got := Kelly(TradeStatistics{WinRate: 0.6, AvgWin: 0.03, AvgLoss: 0.02}, 1.0)
	want := 0.5 / 1.5 * 0.25 // raw kelly 1/3, quarter scaled
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("Kelly = %v, want %v", got, want)
	}
	if math.Abs(got-0.0833) > 0.0001 {
		t.Errorf("Kelly = %v, want ~0.0833", got)
	}
}

func TestKellyRawCap(t *testing.T) {
	// A near-certain edge produces a raw Kelly above the 0.5 cap; the
	// scaled result must be capped*fraction, not larger.
	got := Kelly(TradeStatistics{WinRate: 0.95, AvgWin: 0.10, AvgLoss: 0.01}, 1.0)
	if want := RawKellyCap * KellyFraction; math.Abs(got-want) > 1e-12 {
		t.Errorf("Kelly = %v, want capped %v", got, want)
	}
}

func TestKellyDefensive(t *testing.T) {
	cases := []struct {
		name  string
		stats TradeStatistics
	}{
		{"zero win rate", TradeStatistics{WinRate: 0, AvgWin: 0.03, AvgLoss: 0.02}},
		{"zero avg loss", TradeStatistics{WinRate: 0.6, AvgWin: 0.03, AvgLoss: 0}},
		{"negative edge", TradeStatistics{WinRate: 0.2, AvgWin: 0.01, AvgLoss: 0.05}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kelly(tc.stats, 1.0); got != 0 {
				t.Errorf("Kelly = %v, want 0 (flat)", got)
			}
		})
	}
}

func TestKellyMaxFractionClip(t *testing.T) {
	got := Kelly(TradeStatistics{WinRate: 0.6, AvgWin: 0.03, AvgLoss: 0.02}, 0.05)
	if got != 0.05 {
		t.Errorf("Kelly clipped = %v, want 0.05", got)
	}
}

func TestRiskParity(t *testing.T) {
	if got := RiskParity(0.30, 0.15, 1.0); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("RiskParity(0.30, 0.15) = %v, want 0.5", got)
	}
	if got := RiskParity(0.10, 0.15, 1.0); got != 1.0 {
		t.Errorf("RiskParity should clip at max: got %v", got)
	}
	if got := RiskParity(0, 0.15, 1.0); got != 0 {
		t.Errorf("RiskParity(0 vol) = %v, want 0", got)
	}
}

func TestRiskParityWeights(t *testing.T) {
	w := RiskParityWeights([]float64{0.10, 0.20, 0.40})
	var sum float64
	for _, x := range w {
		sum += x
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("weights sum = %v, want 1", sum)
	}
	// Inverse-vol: half the volatility gets double the weight.
	if math.Abs(w[0]-2*w[1]) > 1e-12 || math.Abs(w[1]-2*w[2]) > 1e-12 {
		t.Errorf("weights = %v, want inverse-vol proportions", w)
	}

	// A dead candidate gets zero without poisoning the rest.
	w = RiskParityWeights([]float64{0.10, 0})
	if w[1] != 0 || math.Abs(w[0]-1) > 1e-12 {
		t.Errorf("weights with dead candidate = %v, want [1 0]", w)
	}
}

func TestVolatilityTarget(t *testing.T) {
	flat := make([]float64, 30) // zero volatility
	if got := VolatilityTarget(flat, 20, 0.15, 252, 1.0); got != 0 {
		t.Errorf("zero-vol window should size 0, got %v", got)
	}
	if got := VolatilityTarget(flat[:5], 20, 0.15, 252, 1.0); got != 0 {
		t.Errorf("short window should size 0, got %v", got)
	}

	// Alternating ±1% daily returns: realized vol ≈ 0.01 * sqrt(252) ≈ 0.159.
	rets := make([]float64, 40)
	for i := range rets {
		if i%2 == 0 {
			rets[i] = 0.01
		} else {
			rets[i] = -0.01
		}
	}
	got := VolatilityTarget(rets, 20, 0.15, 252, 1.0)
	if got <= 0 || got > 1 {
		t.Fatalf("VolatilityTarget = %v, want in (0, 1]", got)
	}
}

func TestFixedFractional(t *testing.T) {
	if got := FixedFractional(0.02, 0.05, 1.0); math.Abs(got-0.4) > 1e-12 {
		t.Errorf("FixedFractional(0.02, 0.05) = %v, want 0.4", got)
	}
	if got := FixedFractional(0.02, 0, 1.0); got != 0 {
		t.Errorf("zero stop should size 0, got %v", got)
	}
}

func TestSummarize(t *testing.T) {
	day := func(i int) time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
	}
	trades := []domain.Trade{
		{EntryDate: day(0), ExitDate: day(5), Quantity: 10, EntryPrice: 100, RealizedPL: 30},  // +3%
		{EntryDate: day(6), ExitDate: day(9), Quantity: 10, EntryPrice: 100, RealizedPL: -20}, // -2%
		{EntryDate: day(10), ExitDate: day(12), Quantity: 10, EntryPrice: 100, RealizedPL: 30},
	}
	stats := Summarize(trades)

	if stats.NumTrades != 3 {
		t.Fatalf("NumTrades = %d, want 3", stats.NumTrades)
	}
	if math.Abs(stats.WinRate-2.0/3.0) > 1e-12 {
		t.Errorf("WinRate = %v, want 2/3", stats.WinRate)
	}
	if math.Abs(stats.AvgWin-0.03) > 1e-12 {
		t.Errorf("AvgWin = %v, want 0.03", stats.AvgWin)
	}
	if math.Abs(stats.AvgLoss-0.02) > 1e-12 {
		t.Errorf("AvgLoss = %v, want 0.02", stats.AvgLoss)
	}

	if got := Summarize(nil); got.NumTrades != 0 || got.WinRate != 0 {
		t.Errorf("Summarize(nil) = %+v, want zero stats", got)
	}
}
