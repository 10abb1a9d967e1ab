package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	osignal "os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"quantlab/internal/config"
	"quantlab/internal/data"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

func main() {
	symbols := flag.String("symbols", "", "comma-separated symbols to fetch (defaults to the configured symbol)")
	start := flag.String("start", "", "start date YYYY-MM-DD (overrides config)")
	end := flag.String("end", "", "end date YYYY-MM-DD (overrides config)")
	flag.Parse()

	cfgPath := "config/quantlab.yaml"
	if p := os.Getenv("QUANTLAB_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
		} else {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/quantlab-data-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if *start != "" {
		cfg.Data.StartDate = *start
	}
	if *end != "" {
		cfg.Data.EndDate = *end
	}

	list := cfg.Data.Symbol
	if *symbols != "" {
		list = *symbols
	}
	var targets []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		log.Fatal("no symbols given (flag -symbols or config data.symbol)")
	}

	startDate, endDate, err := resolveRange(cfg)
	if err != nil {
		log.Fatalf("resolving date range: %v", err)
	}

	cache := store.NewParquetStore(cfg.Storage.DataDir)
	provider := data.NewCachedProvider(
		data.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Data.RateLimitPerMin),
		cache,
	)

	ctx, cancel := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting quantlab-data",
		"symbols", len(targets),
		"start", startDate.Format("2006-01-02"),
		"end", endDate.Format("2006-01-02"),
		"logFile", logFileName,
	)

	jobs := make(chan string, len(targets))
	for _, sym := range targets {
		jobs <- sym
	}
	close(jobs)

	var (
		wg      sync.WaitGroup
		fetched atomic.Int64
		failed  atomic.Int64
		runAt   = time.Now()
	)

	workers := cfg.Data.MaxWorkers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(targets) {
		workers = len(targets)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				if ctx.Err() != nil {
					return
				}
				bars, err := provider.GetBars(ctx, sym, startDate, endDate)
				if err != nil {
					slog.Error("fetch failed", "symbol", sym, "err", err)
					failed.Add(1)
					continue
				}
				if err := data.ValidateSeries(bars, cfg.Data.MaxGapDays); err != nil {
					slog.Warn("series has gaps", "symbol", sym, "err", err)
				}
				fetched.Add(1)
				slog.Info("cached", "symbol", sym, "bars", len(bars))
			}
		}()
	}
	wg.Wait()

	slog.Info("complete",
		"fetched", fetched.Load(),
		"failed", failed.Load(),
		"elapsed", time.Since(runAt).Round(time.Second),
	)
	if ctx.Err() != nil {
		os.Exit(1)
	}
}

func resolveRange(cfg *config.Config) (time.Time, time.Time, error) {
	end := util.PrevTradingDay(time.Now().UTC().Truncate(24 * time.Hour))
	if cfg.Data.EndDate != "" {
		var err error
		end, err = time.Parse("2006-01-02", cfg.Data.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad end date %q", cfg.Data.EndDate)
		}
	}
	start := end.AddDate(-2, 0, 0)
	if cfg.Data.StartDate != "" {
		var err error
		start, err = time.Parse("2006-01-02", cfg.Data.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad start date %q", cfg.Data.StartDate)
		}
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start %s is not before end %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	return start, end, nil
}
