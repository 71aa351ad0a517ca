package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"token-price-alerts/internal/config"
	"token-price-alerts/internal/fetcher"
	"token-price-alerts/internal/metrics"
	"token-price-alerts/internal/service"
	"token-price-alerts/internal/storage"
)

// SimulateAlert runs one synthetic alert cycle for a single asset moving from
// previous to current, through the configured notifier. Persisted state is not touched.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions, out io.Writer) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled; nothing would be sent")
	}

	previous, err := parsePositive("--previous", opts.Previous)
	if err != nil {
		return err
	}
	current, err := parsePositive("--current", opts.Current)
	if err != nil {
		return err
	}

	if opts.Asset == "" {
		opts.Asset = a.Config.Watch.Assets[0]
	}
	if opts.Symbol == "" {
		opts.Symbol = "SIM/USD"
	}
	if opts.Venue == "" {
		opts.Venue = "simulation"
	}

	seed := storage.NewPriceRecord()
	seed[opts.Asset] = previous
	store := storage.NewMemoryStoreWith(seed)

	quotes := fetcher.NewStatic(fetcher.Quote{
		Asset:  opts.Asset,
		Price:  current,
		Venue:  opts.Venue,
		Symbol: opts.Symbol,
	})

	cfg := *a.Config
	cfg.Watch = config.WatchConfig{Assets: []string{opts.Asset}}
	cfg.Scheduler.AdvisoryLockKey = 0

	svc := service.New(&cfg, quotes, store, a.newNotifier(), metrics.New(nil, cfg.Metrics.Namespace), a.Logger)
	svc.Init(ctx)

	report, err := svc.RunCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if len(report.Alerts) == 0 {
		fmt.Fprintln(out, "change is below the alert threshold; no message sent")
	}
	return writeCycleReport(out, report)
}

func parsePositive(flag, raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s value: %w", flag, err)
	}
	if !v.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%s must be greater than zero", flag)
	}
	return v, nil
}
