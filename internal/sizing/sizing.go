// Package sizing converts trade statistics into capital fractions.
// Degenerate inputs (no wins, zero losses, zero volatility) return the
// flat fraction instead of dividing by zero.
package sizing

import (
	"math"

	"quantlab/internal/domain"
)

// Default scaling constants. KellyFraction is quarter Kelly; RawKellyCap
// bounds the unscaled Kelly fraction before the safety scaling applies.
const (
	KellyFraction = 0.25
	RawKellyCap   = 0.5
)

// TradeStatistics summarizes closed trades for sizing decisions.
type TradeStatistics struct {
	WinRate  float64 // fraction of trades with positive realized PnL
	AvgWin   float64 // mean return of winning trades (positive)
	AvgLoss  float64 // mean absolute return of losing trades (positive)
	NumTrades int
}

// Kelly returns the fractional-Kelly capital fraction for the given trade
// statistics, clipped to [0, maxFraction].
//
// The raw Kelly fraction (p*b - q)/b is clamped to [0, RawKellyCap] and then
// scaled by KellyFraction. With win rate 0.60, average win 0.03 and average
// loss 0.02 this yields 0.0833 (8.33% of equity).
func Kelly(stats TradeStatistics, maxFraction float64) float64 {
	return KellyScaled(stats, KellyFraction, maxFraction)
}

// KellyScaled is Kelly with an explicit safety scaling factor.
func KellyScaled(stats TradeStatistics, fraction, maxFraction float64) float64 {
	if stats.WinRate <= 0 || stats.AvgLoss <= 0 {
		return 0
	}

	p := stats.WinRate
	q := 1 - p
	b := stats.AvgWin / stats.AvgLoss
	if b <= 0 {
		return 0
	}

	kelly := (p*b - q) / b
	if kelly < 0 {
		kelly = 0
	}
	if kelly > RawKellyCap {
		kelly = RawKellyCap
	}

	return clip(kelly*fraction, 0, maxFraction)
}

// RiskParity sizes inversely to volatility: fraction = targetVol / vol,
// clipped to [0, maxFraction]. Zero or negative volatility returns 0.
func RiskParity(volatility, targetVol, maxFraction float64) float64 {
	if volatility <= 0 || targetVol <= 0 {
		return 0
	}
	return clip(targetVol/volatility, 0, maxFraction)
}

// RiskParityWeights allocates across candidate volatilities inversely to
// each one's volatility, normalized to sum to 1. Candidates with
// non-positive volatility get weight 0; if none is usable the result is all
// zeros.
func RiskParityWeights(volatilities []float64) []float64 {
	weights := make([]float64, len(volatilities))
	var total float64
	for i, v := range volatilities {
		if v > 0 {
			weights[i] = 1 / v
			total += weights[i]
		}
	}
	if total == 0 {
		return weights
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// VolatilityTarget sizes from realized volatility of a recent return
// window: fraction = targetVol / realizedVol, clipped to [0, maxFraction].
// Returns 0 when the window is short of lookback or volatility vanishes.
func VolatilityTarget(returns []float64, lookback int, targetVol, periodsPerYear, maxFraction float64) float64 {
	if lookback < 2 || len(returns) < lookback {
		return 0
	}

	window := returns[len(returns)-lookback:]
	var sum float64
	n := 0
	for _, r := range window {
		if !domain.IsDefined(r) {
			return 0
		}
		sum += r
		n++
	}
	mean := sum / float64(n)
	var ss float64
	for _, r := range window {
		d := r - mean
		ss += d * d
	}
	realized := math.Sqrt(ss/float64(n-1)) * math.Sqrt(periodsPerYear)
	if realized <= 0 {
		return 0
	}
	return clip(targetVol/realized, 0, maxFraction)
}

// FixedFractional risks a fixed share of equity per trade against a stop
// distance: fraction = riskPerTrade / stopLossPct, clipped.
func FixedFractional(riskPerTrade, stopLossPct, maxFraction float64) float64 {
	if stopLossPct <= 0 || riskPerTrade <= 0 {
		return 0
	}
	return clip(riskPerTrade/stopLossPct, 0, maxFraction)
}

// Summarize computes TradeStatistics from closed trades, using per-trade
// return on the entry notional.
func Summarize(trades []domain.Trade) TradeStatistics {
	var stats TradeStatistics
	if len(trades) == 0 {
		return stats
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, tr := range trades {
		notional := tr.EntryPrice * tr.Quantity
		if notional == 0 {
			continue
		}
		r := tr.RealizedPL / notional
		if r > 0 {
			wins++
			winSum += r
		} else if r < 0 {
			losses++
			lossSum += -r
		}
		stats.NumTrades++
	}

	if stats.NumTrades > 0 {
		stats.WinRate = float64(wins) / float64(stats.NumTrades)
	}
	if wins > 0 {
		stats.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		stats.AvgLoss = lossSum / float64(losses)
	}
	return stats
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
