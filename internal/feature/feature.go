// Package feature derives rolling indicator series from an OHLCV bar
// series. Every output is positionally aligned with the input: entries
// before a window has filled are undefined (NaN), never zero, and stay
// undefined through any downstream arithmetic.
package feature

import (
	"math"

	"quantlab/internal/domain"
)

// Config selects the lookback windows for the computed indicators.
type Config struct {
	// Window is the lookback W for the rolling mean, standard deviation,
	// z-score, and annualized volatility. Must be >= 2 and <= series length.
	Window int

	// FastWindow and SlowWindow are the momentum moving-average lookbacks.
	// FastWindow must be < SlowWindow; SlowWindow must be <= series length.
	FastWindow int
	SlowWindow int

	// ADXWindow is the directional-strength smoothing window. Defaults to 14.
	ADXWindow int

	// PeriodsPerYear annualizes the volatility series. Defaults to 252.
	PeriodsPerYear float64
}

// Set holds the computed indicator series. All slices have the same length
// as the input bar series; undefined entries are NaN.
type Set struct {
	Close      []float64
	Returns    []float64 // simple per-bar returns, Returns[0] undefined
	Mean       []float64 // rolling mean of close over Window
	Std        []float64 // rolling population std of close over Window
	ZScore     []float64 // (close - Mean) / Std
	FastMA     []float64
	SlowMA     []float64
	ADX        []float64 // directional strength, 0-100 scale
	Volatility []float64 // annualized rolling std of log returns over Window
}

// Len returns the number of bars the set was computed from.
func (s *Set) Len() int { return len(s.Close) }

// Compute derives the full indicator set for the given bar series.
func Compute(bars []domain.Bar, cfg Config) (*Set, error) {
	n := len(bars)
	if cfg.Window <= 1 {
		return nil, domain.NewConfigError("feature.window", "must be >= 2, got %d", cfg.Window)
	}
	if cfg.Window > n {
		return nil, domain.NewConfigError("feature.window", "window %d exceeds series length %d", cfg.Window, n)
	}
	if cfg.FastWindow <= 0 || cfg.SlowWindow <= 0 {
		return nil, domain.NewConfigError("feature.ma_windows", "fast/slow windows must be positive, got %d/%d", cfg.FastWindow, cfg.SlowWindow)
	}
	if cfg.FastWindow >= cfg.SlowWindow {
		return nil, domain.NewConfigError("feature.ma_windows", "fast window %d must be smaller than slow window %d", cfg.FastWindow, cfg.SlowWindow)
	}
	if cfg.SlowWindow > n {
		return nil, domain.NewConfigError("feature.ma_windows", "slow window %d exceeds series length %d", cfg.SlowWindow, n)
	}
	adxWindow := cfg.ADXWindow
	if adxWindow == 0 {
		adxWindow = 14
	}
	if adxWindow < 2 {
		return nil, domain.NewConfigError("feature.adx_window", "must be >= 2, got %d", adxWindow)
	}
	ppy := cfg.PeriodsPerYear
	if ppy == 0 {
		ppy = 252
	}

	closes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
	}

	s := &Set{
		Close:   closes,
		Returns: simpleReturns(closes),
		Mean:    rollingMean(closes, cfg.Window),
		Std:     rollingStd(closes, cfg.Window),
		FastMA:  rollingMean(closes, cfg.FastWindow),
		SlowMA:  rollingMean(closes, cfg.SlowWindow),
	}

	s.ZScore = make([]float64, n)
	for i := 0; i < n; i++ {
		if !domain.IsDefined(s.Mean[i]) || !domain.IsDefined(s.Std[i]) || s.Std[i] == 0 {
			s.ZScore[i] = domain.Undefined()
			continue
		}
		s.ZScore[i] = (closes[i] - s.Mean[i]) / s.Std[i]
	}

	s.ADX = computeADX(bars, adxWindow)
	s.Volatility = rollingLogVol(closes, cfg.Window, ppy)

	return s, nil
}

// simpleReturns computes per-bar percentage change of close.
func simpleReturns(closes []float64) []float64 {
	out := make([]float64, len(closes))
	if len(out) > 0 {
		out[0] = domain.Undefined()
	}
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out[i] = domain.Undefined()
			continue
		}
		out[i] = closes[i]/closes[i-1] - 1
	}
	return out
}

// rollingMean computes the mean of the trailing window, undefined until the
// window fills. Uses a sliding sum; windows never contain NaN because the
// source is raw closes.
func rollingMean(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	var sum float64
	for i := range xs {
		sum += xs[i]
		if i >= window {
			sum -= xs[i-window]
		}
		if i < window-1 {
			out[i] = domain.Undefined()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// rollingStd computes the trailing population standard deviation (ddof=0).
func rollingStd(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	var sum, sumSq float64
	for i := range xs {
		sum += xs[i]
		sumSq += xs[i] * xs[i]
		if i >= window {
			sum -= xs[i-window]
			sumSq -= xs[i-window] * xs[i-window]
		}
		if i < window-1 {
			out[i] = domain.Undefined()
			continue
		}
		w := float64(window)
		mean := sum / w
		variance := sumSq/w - mean*mean
		if variance < 0 {
			variance = 0 // float round-off on constant series
		}
		out[i] = math.Sqrt(variance)
	}
	return out
}

// rollingMeanNaN is a NaN-aware rolling mean: the output is undefined
// whenever any value in the trailing window is undefined.
func rollingMeanNaN(xs []float64, window int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < window-1 {
			out[i] = domain.Undefined()
			continue
		}
		sum := 0.0
		ok := true
		for j := i - window + 1; j <= i; j++ {
			if !domain.IsDefined(xs[j]) {
				ok = false
				break
			}
			sum += xs[j]
		}
		if !ok {
			out[i] = domain.Undefined()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}

// rollingLogVol computes the annualized rolling standard deviation of log
// returns (sample std over the window).
func rollingLogVol(closes []float64, window int, periodsPerYear float64) []float64 {
	n := len(closes)
	logRet := make([]float64, n)
	if n > 0 {
		logRet[0] = domain.Undefined()
	}
	for i := 1; i < n; i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			logRet[i] = domain.Undefined()
			continue
		}
		logRet[i] = math.Log(closes[i] / closes[i-1])
	}

	out := make([]float64, n)
	for i := range out {
		if i < window { // needs `window` defined returns, first return is at index 1
			out[i] = domain.Undefined()
			continue
		}
		sum := 0.0
		ok := true
		for j := i - window + 1; j <= i; j++ {
			if !domain.IsDefined(logRet[j]) {
				ok = false
				break
			}
			sum += logRet[j]
		}
		if !ok {
			out[i] = domain.Undefined()
			continue
		}
		mean := sum / float64(window)
		var ss float64
		for j := i - window + 1; j <= i; j++ {
			d := logRet[j] - mean
			ss += d * d
		}
		if window < 2 {
			out[i] = domain.Undefined()
			continue
		}
		out[i] = math.Sqrt(ss/float64(window-1)) * math.Sqrt(periodsPerYear)
	}
	return out
}

// computeADX derives the average directional index from directional
// movement and true range, all smoothed with rolling means.
func computeADX(bars []domain.Bar, window int) []float64 {
	n := len(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)

	if n > 0 {
		plusDM[0] = domain.Undefined()
		minusDM[0] = domain.Undefined()
		tr[0] = domain.Undefined()
	}
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		plusDM[i] = math.Max(up, 0)
		minusDM[i] = math.Max(down, 0)

		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	smPlus := rollingMeanNaN(plusDM, window)
	smMinus := rollingMeanNaN(minusDM, window)
	smTR := rollingMeanNaN(tr, window)

	dx := make([]float64, n)
	for i := range dx {
		if !domain.IsDefined(smPlus[i]) || !domain.IsDefined(smMinus[i]) || !domain.IsDefined(smTR[i]) || smTR[i] == 0 {
			dx[i] = domain.Undefined()
			continue
		}
		plusDI := 100 * smPlus[i] / smTR[i]
		minusDI := 100 * smMinus[i] / smTR[i]
		if plusDI+minusDI == 0 {
			dx[i] = domain.Undefined()
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
	}

	return rollingMeanNaN(dx, window)
}
