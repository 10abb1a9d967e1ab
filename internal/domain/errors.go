package domain

import "fmt"

// ConfigError reports an invalid window, threshold, or grid specification.
// It is detected at construction time, before any simulation runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for the given field.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// DataError reports a defective input series: insufficient history for the
// requested window, gaps beyond the calendar tolerance, or duplicate
// timestamps.
type DataError struct {
	Symbol string
	Reason string
}

func (e *DataError) Error() string {
	if e.Symbol == "" {
		return fmt.Sprintf("data: %s", e.Reason)
	}
	return fmt.Sprintf("data: %s: %s", e.Symbol, e.Reason)
}

// NewDataError builds a DataError for the given symbol.
func NewDataError(symbol, format string, args ...any) *DataError {
	return &DataError{Symbol: symbol, Reason: fmt.Sprintf(format, args...)}
}

// SimulationError reports a state-machine violation during a run, such as a
// short entry when short selling is disabled.
type SimulationError struct {
	Bar    int
	Reason string
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation: bar %d: %s", e.Bar, e.Reason)
}

// NumericError reports NaN propagation beyond the tolerated warm-up region.
type NumericError struct {
	Where string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("numeric: unexpected NaN in %s", e.Where)
}
