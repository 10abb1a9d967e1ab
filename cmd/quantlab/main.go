package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	osignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"quantlab/internal/backtest"
	"quantlab/internal/config"
	"quantlab/internal/data"
	"quantlab/internal/domain"
	"quantlab/internal/optimize"
	"quantlab/internal/regime"
	"quantlab/internal/signal"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quantlab <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  backtest   Run a single backtest and print its statistics\n")
		fmt.Fprintf(os.Stderr, "  optimize   Grid-search strategy parameters\n")
		fmt.Fprintf(os.Stderr, "  regime     Classify the current market regime for a symbol\n")
		fmt.Fprintf(os.Stderr, "  runs       List recent persisted runs\n")
		fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("quantlab %s\n", version)

	case "backtest":
		err = runBacktest(ctx, os.Args[2:])

	case "optimize":
		err = runOptimize(ctx, os.Args[2:])

	case "regime":
		err = runRegime(ctx, os.Args[2:])

	case "runs":
		err = runList(ctx, os.Args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// ---------------------------------------------------------------------------
// Shared setup
// ---------------------------------------------------------------------------

type commonFlags struct {
	configPath string
	symbol     string
	start      string
	end        string
	offline    bool
	noPersist  bool
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "path to YAML config (default config/quantlab.yaml if present)")
	fs.StringVar(&f.symbol, "symbol", "", "symbol to load (overrides config)")
	fs.StringVar(&f.start, "start", "", "start date YYYY-MM-DD (overrides config)")
	fs.StringVar(&f.end, "end", "", "end date YYYY-MM-DD (overrides config)")
	fs.BoolVar(&f.offline, "offline", false, "serve bars from the local cache only")
	fs.BoolVar(&f.noPersist, "no-persist", false, "skip writing results to SQLite")
}

func loadConfig(f *commonFlags) (*config.Config, error) {
	path := f.configPath
	if path == "" {
		if p := os.Getenv("QUANTLAB_CONFIG"); p != "" {
			path = p
		} else if _, err := os.Stat("config/quantlab.yaml"); err == nil {
			path = "config/quantlab.yaml"
		}
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}

	if f.symbol != "" {
		cfg.Data.Symbol = f.symbol
	}
	if f.start != "" {
		cfg.Data.StartDate = f.start
	}
	if f.end != "" {
		cfg.Data.EndDate = f.end
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Data.Symbol == "" {
		return nil, domain.NewConfigError("data.symbol", "no symbol given (flag -symbol or config)")
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)
	return cfg, nil
}

func dateRange(cfg *config.Config) (start, end time.Time, err error) {
	end = util.PrevTradingDay(time.Now().UTC().Truncate(24 * time.Hour))
	if cfg.Data.EndDate != "" {
		end, err = time.Parse("2006-01-02", cfg.Data.EndDate)
		if err != nil {
			return start, end, domain.NewConfigError("data.end_date", "bad date %q", cfg.Data.EndDate)
		}
	}
	start = end.AddDate(-2, 0, 0)
	if cfg.Data.StartDate != "" {
		start, err = time.Parse("2006-01-02", cfg.Data.StartDate)
		if err != nil {
			return start, end, domain.NewConfigError("data.start_date", "bad date %q", cfg.Data.StartDate)
		}
	}
	if !start.Before(end) {
		return start, end, domain.NewConfigError("data.start_date", "start %s is not before end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}

func loadBars(ctx context.Context, cfg *config.Config, offline bool) ([]domain.Bar, error) {
	start, end, err := dateRange(cfg)
	if err != nil {
		return nil, err
	}

	cache := store.NewParquetStore(cfg.Storage.DataDir)
	var provider data.Provider = cache2provider(cache)
	if !offline {
		upstream := data.NewAlpacaProvider(
			cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL,
			cfg.Data.RateLimitPerMin,
		)
		provider = data.NewCachedProvider(upstream, cache)
	}

	bars, err := provider.GetBars(ctx, cfg.Data.Symbol, start, end)
	if err != nil {
		return nil, err
	}
	if err := data.ValidateSeries(bars, cfg.Data.MaxGapDays); err != nil {
		return nil, err
	}
	return bars, nil
}

// cache2provider adapts the bar store's read side to the Provider interface
// for offline runs.
func cache2provider(cache store.BarStore) data.Provider {
	return providerFunc(func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
		bars, err := cache.ReadBars(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			return nil, domain.NewDataError(symbol, "no cached bars; run quantlab-data or drop -offline")
		}
		return bars, nil
	})
}

type providerFunc func(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

func (f providerFunc) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	return f(ctx, symbol, start, end)
}

func strategyConfig(cfg *config.Config) (signal.Config, error) {
	kind, err := signal.ParseKind(cfg.Strategy.Kind)
	if err != nil {
		return signal.Config{}, err
	}
	return signal.Config{
		Kind: kind,
		MeanReversion: signal.MeanReversionParams{
			Window:         cfg.Strategy.MeanReversion.Window,
			EntryThreshold: cfg.Strategy.MeanReversion.EntryThreshold,
			ExitThreshold:  cfg.Strategy.MeanReversion.ExitThreshold,
			AllowShort:     cfg.Strategy.MeanReversion.AllowShort,
		},
		Momentum: signal.MomentumParams{
			FastWindow: cfg.Strategy.Momentum.FastWindow,
			SlowWindow: cfg.Strategy.Momentum.SlowWindow,
			Hysteresis: cfg.Strategy.Momentum.Hysteresis,
			AllowShort: cfg.Strategy.Momentum.AllowShort,
		},
	}, nil
}

func backtestConfig(cfg *config.Config) (backtest.Config, error) {
	sc, err := strategyConfig(cfg)
	if err != nil {
		return backtest.Config{}, err
	}
	return backtest.Config{
		Strategy:       sc,
		InitialCash:    cfg.Backtest.InitialCash,
		FeeRate:        cfg.Backtest.FeeRate,
		ExecutionLag:   cfg.Backtest.ExecutionLag,
		PeriodsPerYear: cfg.Backtest.PeriodsPerYear,
		AllowShort:     cfg.Backtest.AllowShort,
		MaxFraction:    cfg.Backtest.MaxFraction,
		KellySizing:    cfg.Backtest.KellySizing,
	}, nil
}

func openRunStore(cfg *config.Config) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	return store.NewSQLiteStore(cfg.Storage.SQLitePath)
}

func paramsJSON(cfg *config.Config) string {
	var v any
	switch cfg.Strategy.Kind {
	case "momentum":
		v = cfg.Strategy.Momentum
	default:
		v = cfg.Strategy.MeanReversion
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func printStats(s domain.Stats) {
	fmt.Printf("total return:   %+.2f%%\n", s.TotalReturn*100)
	fmt.Printf("annual return:  %+.2f%%\n", s.AnnualReturn*100)
	fmt.Printf("sharpe:         %.3f\n", s.Sharpe)
	fmt.Printf("max drawdown:   %.2f%%\n", s.MaxDrawdown*100)
	if domain.IsDefined(s.WinRate) {
		fmt.Printf("win rate:       %.1f%%\n", s.WinRate*100)
	} else {
		fmt.Printf("win rate:       n/a\n")
	}
	fmt.Printf("trades:         %d\n", s.TradeCount)
}

// ---------------------------------------------------------------------------
// Subcommands
// ---------------------------------------------------------------------------

func runBacktest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	var cf commonFlags
	cf.register(fs)
	fs.Parse(args)

	cfg, err := loadConfig(&cf)
	if err != nil {
		return err
	}
	bars, err := loadBars(ctx, cfg, cf.offline)
	if err != nil {
		return err
	}
	bcfg, err := backtestConfig(cfg)
	if err != nil {
		return err
	}

	res, err := backtest.Run(bars, bcfg)
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s  %d bars\n\n", cfg.Data.Symbol, cfg.Strategy.Kind, len(bars))
	printStats(res.Stats())

	if cf.noPersist {
		return nil
	}
	db, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runID, err := db.SaveRun(ctx, &store.RunRecord{
		Symbol:   cfg.Data.Symbol,
		Strategy: cfg.Strategy.Kind,
		Params:   paramsJSON(cfg),
		Stats:    res.Stats(),
	})
	if err != nil {
		return err
	}
	if err := db.SaveTrades(ctx, runID, res.Simulation.Trades); err != nil {
		return err
	}
	fmt.Printf("\nsaved as run %d\n", runID)
	return nil
}

func runOptimize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	var cf commonFlags
	top := fs.Int("top", 10, "number of ranked cells to print")
	cf.register(fs)
	fs.Parse(args)

	cfg, err := loadConfig(&cf)
	if err != nil {
		return err
	}
	if len(cfg.Optimizer.Grid) == 0 {
		return domain.NewConfigError("optimizer.grid", "no grid axes configured")
	}
	bars, err := loadBars(ctx, cfg, cf.offline)
	if err != nil {
		return err
	}
	bcfg, err := backtestConfig(cfg)
	if err != nil {
		return err
	}

	ocfg := optimize.Config{
		Metric:   optimize.Metric(cfg.Optimizer.Metric),
		TieBreak: optimize.Metric(cfg.Optimizer.TieBreak),
		Workers:  cfg.Optimizer.MaxWorkers,
	}
	for _, axis := range cfg.Optimizer.Grid {
		ocfg.Grid = append(ocfg.Grid, optimize.Axis{Name: axis.Name, Values: axis.Values})
	}

	res, err := backtest.Optimize(ctx, bars, bcfg, ocfg, nil)
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s  %d cells evaluated, %d ranked\n\n",
		cfg.Data.Symbol, cfg.Strategy.Kind, len(res.Cells), len(res.Ranked))
	for i, c := range res.Ranked {
		if i >= *top {
			break
		}
		pj, _ := json.Marshal(c.Params)
		fmt.Printf("%2d. %s  sharpe=%.3f  return=%+.2f%%  drawdown=%.2f%%  trades=%d\n",
			i+1, pj, c.Stats.Sharpe, c.Stats.TotalReturn*100,
			c.Stats.MaxDrawdown*100, c.Stats.TradeCount)
	}

	if cf.noPersist || len(res.Cells) == 0 {
		return nil
	}
	db, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	best := store.RunRecord{
		Symbol:   cfg.Data.Symbol,
		Strategy: cfg.Strategy.Kind,
		Params:   paramsJSON(cfg),
	}
	if len(res.Ranked) > 0 {
		pj, _ := json.Marshal(res.Ranked[0].Params)
		best.Params = string(pj)
		best.Stats = res.Ranked[0].Stats
	}
	runID, err := db.SaveRun(ctx, &best)
	if err != nil {
		return err
	}

	cells := make([]store.GridCellRecord, 0, len(res.Cells))
	for _, c := range res.Cells {
		pj, _ := json.Marshal(c.Params)
		rec := store.GridCellRecord{
			CellIndex: c.Index,
			Params:    string(pj),
			Ranked:    c.Ranked,
			Stats:     c.Stats,
		}
		if c.Err != nil {
			rec.Error = c.Err.Error()
		}
		cells = append(cells, rec)
	}
	if err := db.SaveGridCells(ctx, runID, cells); err != nil {
		return err
	}
	fmt.Printf("\nsaved as run %d with %d grid cells\n", runID, len(cells))
	return nil
}

func runRegime(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("regime", flag.ExitOnError)
	var cf commonFlags
	lookback := fs.Int("lookback", 60, "classification lookback in bars")
	cf.register(fs)
	fs.Parse(args)

	cfg, err := loadConfig(&cf)
	if err != nil {
		return err
	}
	bars, err := loadBars(ctx, cfg, cf.offline)
	if err != nil {
		return err
	}

	classifier, err := regime.New(regime.Config{Lookback: *lookback})
	if err != nil {
		return err
	}
	label, err := classifier.Classify(bars)
	if err != nil {
		return err
	}

	fmt.Printf("%s as of %s\n", cfg.Data.Symbol, bars[len(bars)-1].Timestamp.Format("2006-01-02"))
	fmt.Printf("regime:      %s\n", label.Regime)
	fmt.Printf("confidence:  %.2f\n", label.Confidence)
	fmt.Printf("suggested:   %s\n", regime.RecommendKind(label))
	return nil
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	var cf commonFlags
	limit := fs.Int("limit", 20, "maximum runs to list")
	cf.register(fs)
	fs.Parse(args)

	// The runs command needs no symbol; list across all when unset.
	path := cf.configPath
	if path == "" {
		if p := os.Getenv("QUANTLAB_CONFIG"); p != "" {
			path = p
		} else if _, err := os.Stat("config/quantlab.yaml"); err == nil {
			path = "config/quantlab.yaml"
		}
	}
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}

	db, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(ctx, cf.symbol, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%4d  %s  %-6s %-14s sharpe=%.3f return=%+.2f%% trades=%d  %s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Symbol, r.Strategy,
			r.Stats.Sharpe, r.Stats.TotalReturn*100, r.Stats.TradeCount, r.Params)
	}
	return nil
}
