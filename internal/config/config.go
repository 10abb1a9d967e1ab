package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"quantlab/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quantlab toolchain.
type Config struct {
	Storage   Storage         `yaml:"storage"`
	Alpaca    Alpaca          `yaml:"alpaca"`
	Logging   Logging         `yaml:"logging"`
	Data      DataConfig      `yaml:"data"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Backtest  BacktestConfig  `yaml:"backtest"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DataConfig selects the bar series to load.
type DataConfig struct {
	Symbol    string `yaml:"symbol"`
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`

	// MaxGapDays bounds the calendar gap tolerated between consecutive
	// bars before the series is rejected. Zero means the default of 5,
	// which covers a weekend plus a holiday.
	MaxGapDays      int `yaml:"max_gap_days"`
	MaxWorkers      int `yaml:"max_workers"`
	RateLimitPerMin int `yaml:"rate_limit_per_min"`
}

// StrategyConfig names the strategy family and its parameters. Only the
// block matching Kind is consulted.
type StrategyConfig struct {
	Kind          string              `yaml:"kind"`
	MeanReversion MeanReversionConfig `yaml:"mean_reversion"`
	Momentum      MomentumConfig      `yaml:"momentum"`
}

// MeanReversionConfig mirrors signal.MeanReversionParams.
type MeanReversionConfig struct {
	Window         int     `yaml:"window"`
	EntryThreshold float64 `yaml:"entry_threshold"`
	ExitThreshold  float64 `yaml:"exit_threshold"`
	AllowShort     bool    `yaml:"allow_short"`
}

// MomentumConfig mirrors signal.MomentumParams.
type MomentumConfig struct {
	FastWindow int     `yaml:"fast_window"`
	SlowWindow int     `yaml:"slow_window"`
	Hysteresis float64 `yaml:"hysteresis"`
	AllowShort bool    `yaml:"allow_short"`
}

// BacktestConfig defines simulation and accounting parameters.
type BacktestConfig struct {
	InitialCash    float64 `yaml:"initial_cash"`
	FeeRate        float64 `yaml:"fee_rate"`
	ExecutionLag   int     `yaml:"execution_lag"`
	PeriodsPerYear float64 `yaml:"periods_per_year"`
	AllowShort     bool    `yaml:"allow_short"`
	MaxFraction    float64 `yaml:"max_fraction"`
	KellySizing    bool    `yaml:"kelly_sizing"`
}

// OptimizerConfig defines the parameter grid and ranking rules.
type OptimizerConfig struct {
	Grid       []GridAxis `yaml:"grid"`
	Metric     string     `yaml:"metric"`
	TieBreak   string     `yaml:"tie_break"`
	MaxWorkers int        `yaml:"max_workers"`
}

// GridAxis is one named candidate list in the optimizer grid. Axis order in
// the file fixes cell enumeration order.
type GridAxis struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: Storage{DataDir: "data", SQLitePath: "data/quantlab.db"},
		Logging: Logging{Level: "info", Format: "json"},
		Data:    DataConfig{MaxGapDays: 5, MaxWorkers: 4, RateLimitPerMin: 200},
		Strategy: StrategyConfig{
			Kind:          "mean_reversion",
			MeanReversion: MeanReversionConfig{Window: 20, EntryThreshold: 1.0, ExitThreshold: 0.25},
			Momentum:      MomentumConfig{FastWindow: 20, SlowWindow: 60},
		},
		Backtest: BacktestConfig{
			InitialCash:    100000,
			FeeRate:        0.0005,
			ExecutionLag:   1,
			PeriodsPerYear: 252,
			MaxFraction:    1,
		},
		Optimizer: OptimizerConfig{Metric: "sharpe", TieBreak: "max_drawdown", MaxWorkers: 4},
	}
}

// Load reads the YAML configuration file at the given path, parses it over
// the defaults, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("QUANTLAB_SYMBOL"); v != "" {
		cfg.Data.Symbol = v
	}

	if v := os.Getenv("QUANTLAB_INITIAL_CASH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Backtest.InitialCash = f
		}
	}

	// Standard Alpaca env vars (highest priority, canonical SDK names).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// Validate checks cross-field constraints that YAML parsing cannot express.
func (c *Config) Validate() error {
	if c.Backtest.InitialCash <= 0 {
		return domain.NewConfigError("backtest.initial_cash", "must be > 0, got %v", c.Backtest.InitialCash)
	}
	if c.Backtest.FeeRate < 0 || c.Backtest.FeeRate >= 1 {
		return domain.NewConfigError("backtest.fee_rate", "must be in [0, 1), got %v", c.Backtest.FeeRate)
	}
	if c.Backtest.ExecutionLag < 0 {
		return domain.NewConfigError("backtest.execution_lag", "must be >= 0, got %d", c.Backtest.ExecutionLag)
	}
	if c.Backtest.PeriodsPerYear <= 0 {
		return domain.NewConfigError("backtest.periods_per_year", "must be > 0, got %v", c.Backtest.PeriodsPerYear)
	}
	if c.Backtest.MaxFraction <= 0 || c.Backtest.MaxFraction > 1 {
		return domain.NewConfigError("backtest.max_fraction", "must be in (0, 1], got %v", c.Backtest.MaxFraction)
	}
	if c.Data.MaxGapDays < 0 {
		return domain.NewConfigError("data.max_gap_days", "must be >= 0, got %d", c.Data.MaxGapDays)
	}
	switch c.Strategy.Kind {
	case "mean_reversion", "momentum":
	default:
		return domain.NewConfigError("strategy.kind", "unknown strategy %q", c.Strategy.Kind)
	}
	for _, axis := range c.Optimizer.Grid {
		if axis.Name == "" {
			return domain.NewConfigError("optimizer.grid", "axis with empty name")
		}
		if len(axis.Values) == 0 {
			return domain.NewConfigError("optimizer.grid", "axis %q has no candidate values", axis.Name)
		}
	}
	return nil
}
