package domain

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	// Verify direction constants and names.
	if Long != 1 || Flat != 0 || Short != -1 {
		t.Error("Direction constants have unexpected values")
	}
	if Long.String() != "long" || Flat.String() != "flat" || Short.String() != "short" {
		t.Error("Direction.String returned unexpected names")
	}

	// Verify regime names.
	if TrendingUp.String() != "trending_up" {
		t.Errorf("TrendingUp.String() = %q, want %q", TrendingUp.String(), "trending_up")
	}
	if TrendingDown.String() != "trending_down" {
		t.Errorf("TrendingDown.String() = %q, want %q", TrendingDown.String(), "trending_down")
	}
	if Ranging.String() != "ranging" {
		t.Errorf("Ranging.String() = %q, want %q", Ranging.String(), "ranging")
	}

	// Verify structs can be constructed with real values.
	now := time.Now()
	trade := Trade{
		Symbol:     "AAPL",
		Direction:  Long,
		EntryDate:  now,
		ExitDate:   now.AddDate(0, 0, 5),
		Quantity:   100,
		EntryPrice: 185.0,
		ExitPrice:  190.0,
		RealizedPL: 500.0,
		FeesPaid:   1.2,
	}
	if trade.Direction != Long {
		t.Errorf("trade.Direction = %v, want %v", trade.Direction, Long)
	}
}

func TestUndefinedSentinel(t *testing.T) {
	u := Undefined()
	if !math.IsNaN(u) {
		t.Fatal("Undefined() should be NaN")
	}
	if IsDefined(u) {
		t.Error("IsDefined(Undefined()) = true, want false")
	}
	if !IsDefined(0) {
		t.Error("IsDefined(0) = false, want true")
	}
	// NaN must propagate through arithmetic rather than degrade to zero.
	if IsDefined(u * 2) {
		t.Error("arithmetic on an undefined value should stay undefined")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	var err error = NewConfigError("window", "must be >= 2, got %d", 1)

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As failed to match *ConfigError")
	}
	if ce.Field != "window" {
		t.Errorf("ce.Field = %q, want %q", ce.Field, "window")
	}

	err = NewDataError("AAPL", "duplicate timestamp at index %d", 7)
	var de *DataError
	if !errors.As(err, &de) {
		t.Fatal("errors.As failed to match *DataError")
	}
	if de.Symbol != "AAPL" {
		t.Errorf("de.Symbol = %q, want %q", de.Symbol, "AAPL")
	}

	se := &SimulationError{Bar: 3, Reason: "short entry with shorting disabled"}
	if se.Error() == "" {
		t.Error("SimulationError.Error() should not be empty")
	}
}
