package signal

import (
	"errors"
	"testing"

	"quantlab/internal/domain"
	"quantlab/internal/feature"
)

func mustNew(t *testing.T, cfg Config) *Generator {
	t.Helper()
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	return g
}

// zSet builds a feature set whose z-score series is given directly; the
// generator only reads ZScore for mean reversion.
func zSet(zs []float64) *feature.Set {
	return &feature.Set{Close: make([]float64, len(zs)), ZScore: zs}
}

// maSet builds a feature set with explicit fast/slow MA series.
func maSet(fast, slow []float64) *feature.Set {
	return &feature.Set{Close: make([]float64, len(fast)), FastMA: fast, SlowMA: slow}
}

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"mr zero entry", Config{Kind: MeanReversion, MeanReversion: MeanReversionParams{Window: 20, EntryThreshold: 0, ExitThreshold: 0}}},
		{"mr exit >= entry", Config{Kind: MeanReversion, MeanReversion: MeanReversionParams{Window: 20, EntryThreshold: 1, ExitThreshold: 1}}},
		{"mr tiny window", Config{Kind: MeanReversion, MeanReversion: MeanReversionParams{Window: 1, EntryThreshold: 2, ExitThreshold: 0.5}}},
		{"mom fast >= slow", Config{Kind: Momentum, Momentum: MomentumParams{FastWindow: 30, SlowWindow: 10}}},
		{"mom negative hysteresis", Config{Kind: Momentum, Momentum: MomentumParams{FastWindow: 10, SlowWindow: 30, Hysteresis: -0.1}}},
		{"unknown kind", Config{Kind: Kind(99)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg)
			var ce *domain.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("New error = %v, want ConfigError", err)
			}
		})
	}
}

func TestMeanReversionLongCycle(t *testing.T) {
	g := mustNew(t, Config{
		Kind: MeanReversion,
		MeanReversion: MeanReversionParams{
			Window: 20, EntryThreshold: 2, ExitThreshold: 0.5,
		},
	})

	u := domain.Undefined()
	zs := []float64{u, u, -1.0, -2.5, -1.0, -0.4, 1.0}
	got := g.Generate(zSet(zs))

	want := []domain.Direction{
		domain.Flat, // undefined: no signal
		domain.Flat,
		domain.Flat, // -1.0 not past entry
		domain.Long, // -2.5 < -2
		domain.Long, // -1.0 still below -exit(-0.5)
		domain.Flat, // -0.4 crossed back past -0.5
		domain.Flat, // shorting disabled
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("intent[%d] = %v, want %v (z=%v)", i, got[i], want[i], zs[i])
		}
	}
}

func TestMeanReversionShortEnabled(t *testing.T) {
	g := mustNew(t, Config{
		Kind: MeanReversion,
		MeanReversion: MeanReversionParams{
			Window: 20, EntryThreshold: 1.5, ExitThreshold: 0.25, AllowShort: true,
		},
	})

	zs := []float64{0, 2.0, 1.0, 0.2, -2.0, -0.2}
	got := g.Generate(zSet(zs))

	want := []domain.Direction{
		domain.Flat,
		domain.Short, // 2.0 > 1.5
		domain.Short, // 1.0 still above exit 0.25
		domain.Flat,  // 0.2 < 0.25
		domain.Long,  // -2.0 < -1.5
		domain.Flat,  // -0.2 > -0.25
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("intent[%d] = %v, want %v (z=%v)", i, got[i], want[i], zs[i])
		}
	}
}

func TestBoundaryRetainsState(t *testing.T) {
	g := mustNew(t, Config{
		Kind: MeanReversion,
		MeanReversion: MeanReversionParams{
			Window: 20, EntryThreshold: 2, ExitThreshold: 0.5, AllowShort: true,
		},
	})

	// Exactly at a threshold: comparisons are strict, so no transition.
	zs := []float64{-2.0, -2.1, -0.5, 2.5}
	got := g.Generate(zSet(zs))

	if got[0] != domain.Flat {
		t.Errorf("z exactly at -entry should not open: got %v", got[0])
	}
	if got[1] != domain.Long {
		t.Errorf("z past -entry should open long: got %v", got[1])
	}
	if got[2] != domain.Long {
		t.Errorf("z exactly at -exit should hold the long: got %v", got[2])
	}
	if got[3] != domain.Short {
		t.Errorf("z well past +entry should flip to short: got %v", got[3])
	}
}

func TestMomentumHysteresis(t *testing.T) {
	g := mustNew(t, Config{
		Kind:     Momentum,
		Momentum: MomentumParams{FastWindow: 5, SlowWindow: 10, Hysteresis: 0.5, AllowShort: true},
	})

	u := domain.Undefined()
	fast := []float64{u, 10.0, 11.0, 10.2, 9.0, 9.8}
	slow := []float64{u, 10.0, 10.0, 10.0, 10.0, 10.0}
	got := g.Generate(maSet(fast, slow))

	want := []domain.Direction{
		domain.Flat,  // warm-up
		domain.Flat,  // diff 0 inside the band
		domain.Long,  // diff 1.0 > 0.5
		domain.Long,  // diff 0.2 inside the band: hold
		domain.Short, // diff -1.0 < -0.5
		domain.Short, // diff -0.2 inside the band: hold
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("intent[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMomentumNoShortMapsToFlat(t *testing.T) {
	g := mustNew(t, Config{
		Kind:     Momentum,
		Momentum: MomentumParams{FastWindow: 5, SlowWindow: 10},
	})

	fast := []float64{11, 9, 11}
	slow := []float64{10, 10, 10}
	got := g.Generate(maSet(fast, slow))

	want := []domain.Direction{domain.Long, domain.Flat, domain.Long}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("intent[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("momentum")
	if err != nil || k != Momentum {
		t.Errorf("ParseKind(momentum) = %v, %v", k, err)
	}
	k, err = ParseKind("mean_reversion")
	if err != nil || k != MeanReversion {
		t.Errorf("ParseKind(mean_reversion) = %v, %v", k, err)
	}
	if _, err := ParseKind("arbitrage"); err == nil {
		t.Error("ParseKind(arbitrage) should fail")
	}
}
