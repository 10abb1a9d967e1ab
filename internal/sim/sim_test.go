package sim

import (
	"errors"
	"math"
	"testing"
	"time"

	"quantlab/internal/domain"
	"quantlab/internal/sizing"
)

func priceBars(closes []float64) []domain.Bar {
	bars := make([]domain.Bar, len(closes))
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "TEST",
			Timestamp: base.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	return bars
}

func flatIntents(n int) []domain.Direction {
	return make([]domain.Direction, n)
}

func longIntents(n int) []domain.Direction {
	out := make([]domain.Direction, n)
	for i := range out {
		out[i] = domain.Long
	}
	return out
}

func TestRunAllFlat(t *testing.T) {
	bars := priceBars([]float64{100, 101, 99, 102, 100})
	res, err := Run(bars, flatIntents(len(bars)), Config{InitialCash: 10000, FeeRate: 0.001})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Stats.TradeCount != 0 {
		t.Errorf("TradeCount = %d, want 0", res.Stats.TradeCount)
	}
	if res.Stats.TotalReturn != 0 {
		t.Errorf("TotalReturn = %v, want 0", res.Stats.TotalReturn)
	}
	if len(res.Equity) != len(bars) {
		t.Fatalf("equity curve length = %d, want %d", len(res.Equity), len(bars))
	}
	for i, p := range res.Equity {
		if p.Value != 10000 {
			t.Errorf("Equity[%d] = %v, want constant 10000", i, p.Value)
		}
	}
	if res.Stats.Sharpe != 0 {
		t.Errorf("Sharpe = %v, want 0 for zero-variance returns", res.Stats.Sharpe)
	}
	// Win rate is undefined with no trades, not zero.
	if domain.IsDefined(res.Stats.WinRate) {
		t.Errorf("WinRate = %v, want undefined", res.Stats.WinRate)
	}
}

func TestRunSingleLongTrade(t *testing.T) {
	// Long intent throughout; with lag 1 the entry executes on bar 1 at
	// 100 and the force-close exits on the final bar at 121.
	bars := priceBars([]float64{100, 100, 110, 121})
	cfg := Config{InitialCash: 1000, FeeRate: 0.001, ExecutionLag: 1}

	res, err := Run(bars, longIntents(len(bars)), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Stats.TradeCount != 1 {
		t.Fatalf("TradeCount = %d, want 1", res.Stats.TradeCount)
	}
	tr := res.Trades[0]
	if tr.Direction != domain.Long {
		t.Errorf("Direction = %v, want long", tr.Direction)
	}
	if tr.EntryPrice != 100 || tr.ExitPrice != 121 {
		t.Errorf("entry/exit = %v/%v, want 100/121", tr.EntryPrice, tr.ExitPrice)
	}
	if !tr.ExitDate.Equal(bars[3].Timestamp) {
		t.Errorf("ExitDate = %v, want final bar", tr.ExitDate)
	}

	// Exact accounting: qty = 1000/(100*1.001); final = qty*121*0.999.
	qty := 1000.0 / (100 * 1.001)
	wantFinal := qty * 121 * 0.999
	gotFinal := res.Equity[len(res.Equity)-1].Value
	if math.Abs(gotFinal-wantFinal) > 1e-9 {
		t.Errorf("final equity = %v, want %v", gotFinal, wantFinal)
	}
	if math.Abs(res.Stats.TotalReturn-(wantFinal/1000-1)) > 1e-12 {
		t.Errorf("TotalReturn = %v, want %v", res.Stats.TotalReturn, wantFinal/1000-1)
	}
	if res.Stats.WinRate != 1 {
		t.Errorf("WinRate = %v, want 1", res.Stats.WinRate)
	}
	if math.Abs(tr.RealizedPL-(wantFinal-1000)) > 1e-9 {
		t.Errorf("RealizedPL = %v, want %v", tr.RealizedPL, wantFinal-1000)
	}
}

func TestRunExecutionLag(t *testing.T) {
	// The price doubles on bar 1. A signal acting without lag would catch
	// the move; with the one-bar lag the entry lands after it.
	bars := priceBars([]float64{100, 200, 200, 200})
	res, err := Run(bars, longIntents(len(bars)), Config{InitialCash: 1000, ExecutionLag: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Stats.TotalReturn; math.Abs(got) > 1e-12 {
		t.Errorf("TotalReturn = %v, want 0 (entry after the jump)", got)
	}
	if res.Trades[0].EntryPrice != 200 {
		t.Errorf("EntryPrice = %v, want 200 (lagged)", res.Trades[0].EntryPrice)
	}
}

func TestRunShortTrade(t *testing.T) {
	bars := priceBars([]float64{100, 100, 90, 80})
	intents := []domain.Direction{domain.Short, domain.Short, domain.Short, domain.Short}

	res, err := Run(bars, intents, Config{InitialCash: 1000, ExecutionLag: 1, AllowShort: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.TradeCount != 1 {
		t.Fatalf("TradeCount = %d, want 1", res.Stats.TradeCount)
	}
	tr := res.Trades[0]
	if tr.Direction != domain.Short {
		t.Errorf("Direction = %v, want short", tr.Direction)
	}
	// qty = 10 at entry 100, covered at 80: +200 with zero fees.
	if math.Abs(tr.RealizedPL-200) > 1e-9 {
		t.Errorf("RealizedPL = %v, want 200", tr.RealizedPL)
	}
	if got := res.Equity[len(res.Equity)-1].Value; math.Abs(got-1200) > 1e-9 {
		t.Errorf("final equity = %v, want 1200", got)
	}
}

func TestRunShortDisallowed(t *testing.T) {
	bars := priceBars([]float64{100, 100, 100})
	intents := []domain.Direction{domain.Short, domain.Flat, domain.Flat}

	_, err := Run(bars, intents, Config{InitialCash: 1000, ExecutionLag: 1})
	var se *domain.SimulationError
	if !errors.As(err, &se) {
		t.Fatalf("Run error = %v, want SimulationError", err)
	}
}

func TestRunDeterminism(t *testing.T) {
	closes := make([]float64, 200)
	intents := make([]domain.Direction, 200)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/7) + float64(i%13)
		switch {
		case i%17 < 6:
			intents[i] = domain.Long
		case i%17 < 9:
			intents[i] = domain.Short
		default:
			intents[i] = domain.Flat
		}
	}
	bars := priceBars(closes)
	cfg := Config{InitialCash: 50000, FeeRate: 0.0005, AllowShort: true, Sizer: KellySizer(1.0, 0.5)}

	a, err := Run(bars, intents, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	b, err := Run(bars, intents, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Bit-identical, not merely close.
	if a.Stats != b.Stats && !(math.IsNaN(a.Stats.WinRate) && math.IsNaN(b.Stats.WinRate) && statsEqualIgnoringWinRate(a.Stats, b.Stats)) {
		t.Errorf("stats differ between identical runs:\n  a=%+v\n  b=%+v", a.Stats, b.Stats)
	}
	for i := range a.Equity {
		if a.Equity[i].Value != b.Equity[i].Value {
			t.Fatalf("equity[%d] differs: %v vs %v", i, a.Equity[i].Value, b.Equity[i].Value)
		}
	}
}

func statsEqualIgnoringWinRate(a, b domain.Stats) bool {
	a.WinRate, b.WinRate = 0, 0
	return a == b
}

func TestRunDrawdownBounds(t *testing.T) {
	bars := priceBars([]float64{100, 100, 150, 75, 90, 60, 120})
	res, err := Run(bars, longIntents(len(bars)), Config{InitialCash: 10000, FeeRate: 0.002})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	dd := res.Stats.MaxDrawdown
	if dd < 0 || dd > 1 {
		t.Errorf("MaxDrawdown = %v, want in [0, 1]", dd)
	}
	if dd == 0 {
		t.Error("MaxDrawdown = 0 on a series with a 50% drop, want > 0")
	}
	for i, p := range res.Equity {
		if p.Value < 0 {
			t.Errorf("Equity[%d] = %v, negative equity with fee < 1 and fraction <= 1", i, p.Value)
		}
	}
}

func TestRunValidation(t *testing.T) {
	bars := priceBars([]float64{100, 101})

	if _, err := Run(bars, flatIntents(1), Config{InitialCash: 1000}); err == nil {
		t.Error("length mismatch should fail")
	}
	if _, err := Run(nil, nil, Config{InitialCash: 1000}); err == nil {
		t.Error("empty series should fail")
	}

	var ce *domain.ConfigError
	if _, err := Run(bars, flatIntents(2), Config{InitialCash: 0}); !errors.As(err, &ce) {
		t.Errorf("zero cash error = %v, want ConfigError", err)
	}
	if _, err := Run(bars, flatIntents(2), Config{InitialCash: 1000, FeeRate: 1.5}); !errors.As(err, &ce) {
		t.Errorf("fee out of range error = %v, want ConfigError", err)
	}
	if _, err := Run(bars, flatIntents(2), Config{InitialCash: 1000, MaxFraction: 2}); !errors.As(err, &ce) {
		t.Errorf("fraction out of range error = %v, want ConfigError", err)
	}
}

func TestKellySizerFallback(t *testing.T) {
	s := KellySizer(1.0, 0.5)
	if got := s(sizing.TradeStatistics{}); got != 0.5 {
		t.Errorf("fallback fraction = %v, want 0.5", got)
	}
	got := s(sizing.TradeStatistics{NumTrades: 10, WinRate: 0.6, AvgWin: 0.03, AvgLoss: 0.02})
	if math.Abs(got-0.5/1.5*0.25) > 1e-12 {
		t.Errorf("kelly fraction = %v, want %v", got, 0.5/1.5*0.25)
	}
}
