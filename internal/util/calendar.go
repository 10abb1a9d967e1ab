package util

import "time"

// IsTradingDay reports whether d falls on a weekday. Exchange holidays are
// not modeled here; series validation absorbs them through its gap
// tolerance instead.
func IsTradingDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// PrevTradingDay returns the last weekday strictly before d.
func PrevTradingDay(d time.Time) time.Time {
	for {
		d = d.AddDate(0, 0, -1)
		if IsTradingDay(d) {
			return d
		}
	}
}

// NextTradingDay returns the first weekday strictly after d.
func NextTradingDay(d time.Time) time.Time {
	for {
		d = d.AddDate(0, 0, 1)
		if IsTradingDay(d) {
			return d
		}
	}
}

// TradingDays counts the weekdays in the half-open range [from, to).
func TradingDays(from, to time.Time) int {
	n := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		if IsTradingDay(d) {
			n++
		}
	}
	return n
}
