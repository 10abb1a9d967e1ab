package data

import (
	"time"

	"quantlab/internal/domain"
)

// DefaultMaxGapDays tolerates a weekend plus one holiday between daily bars.
const DefaultMaxGapDays = 5

// ValidateSeries checks that bars form a usable daily series: non-empty,
// strictly increasing timestamps with no duplicates, and no calendar gap
// wider than maxGapDays. A maxGapDays of zero applies the default.
func ValidateSeries(bars []domain.Bar, maxGapDays int) error {
	if len(bars) == 0 {
		return domain.NewDataError("", "empty bar series")
	}
	if maxGapDays <= 0 {
		maxGapDays = DefaultMaxGapDays
	}
	maxGap := time.Duration(maxGapDays) * 24 * time.Hour

	symbol := bars[0].Symbol
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		if cur.Symbol != symbol {
			return domain.NewDataError(symbol, "mixed symbols in series: %s at index %d", cur.Symbol, i)
		}
		if !cur.Timestamp.After(prev.Timestamp) {
			if cur.Timestamp.Equal(prev.Timestamp) {
				return domain.NewDataError(symbol, "duplicate timestamp %s at index %d",
					cur.Timestamp.Format("2006-01-02"), i)
			}
			return domain.NewDataError(symbol, "timestamps out of order at index %d", i)
		}
		if gap := cur.Timestamp.Sub(prev.Timestamp); gap > maxGap {
			return domain.NewDataError(symbol, "gap of %s before %s exceeds %d days",
				gap, cur.Timestamp.Format("2006-01-02"), maxGapDays)
		}
	}
	return nil
}
