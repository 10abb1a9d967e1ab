// Package domain defines the core value types shared across the quantlab
// pipeline: bars, signals, trades, equity curves, performance statistics,
// and regime labels. All types here are plain data; behaviour lives in the
// packages that produce or consume them.
package domain

import (
	"math"
	"time"
)

// Bar is one OHLCV record for a fixed time interval.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Direction is a per-bar position intent.
type Direction int

const (
	Short Direction = -1
	Flat  Direction = 0
	Long  Direction = 1
)

// String returns the lowercase name of the direction.
func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Trade records a single round trip: one position opened and later closed.
type Trade struct {
	Symbol     string
	Direction  Direction
	EntryDate  time.Time
	ExitDate   time.Time
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	RealizedPL float64 // net of fees on both sides
	FeesPaid   float64
}

// EquityPoint is one entry of an equity curve.
type EquityPoint struct {
	Date  time.Time
	Value float64
}

// Stats holds the performance summary of a single backtest run. It is
// computed once at the end of a run and never mutated afterwards.
type Stats struct {
	TotalReturn  float64
	AnnualReturn float64
	Sharpe       float64
	MaxDrawdown  float64
	WinRate      float64 // NaN when TradeCount == 0
	TradeCount   int
}

// Regime classifies price behaviour over a lookback window.
type Regime int

const (
	Ranging Regime = iota
	TrendingUp
	TrendingDown
)

// String returns the snake_case name of the regime.
func (r Regime) String() string {
	switch r {
	case TrendingUp:
		return "trending_up"
	case TrendingDown:
		return "trending_down"
	default:
		return "ranging"
	}
}

// RegimeLabel pairs a regime with a confidence score in [0, 1].
type RegimeLabel struct {
	Regime     Regime
	Confidence float64
}

// Undefined returns the sentinel for feature values that exist positionally
// but carry no information yet (warm-up entries). It is NaN so that it
// propagates through arithmetic instead of silently acting as zero.
func Undefined() float64 { return math.NaN() }

// IsDefined reports whether a feature value carries information.
func IsDefined(v float64) bool { return !math.IsNaN(v) }
