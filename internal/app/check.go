package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"token-price-alerts/internal/format"
	"token-price-alerts/internal/metrics"
	"token-price-alerts/internal/service"
)

// Check runs a single alert cycle against the configured store and prints
// what happened.
func (a *App) Check(ctx context.Context, out io.Writer) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store, metrics.New(nil, a.Config.Metrics.Namespace))
	svc.Init(ctx)

	report, err := svc.RunCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	return writeCycleReport(out, report)
}

// Digest fetches every asset once and sends the summary message.
func (a *App) Digest(ctx context.Context, out io.Writer) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := a.newService(store, metrics.New(nil, a.Config.Metrics.Namespace))
	report, err := svc.RunDigest(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Fprintln(out, report.Message)
	if !report.Notified {
		fmt.Fprintln(out, "\n(digest was not delivered)")
	}
	return nil
}

func writeCycleReport(out io.Writer, report service.CycleReport) error {
	if report.Skipped {
		fmt.Fprintln(out, "cycle skipped: advisory lock held by another instance")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Asset\tSymbol\tPrevious\tCurrent\tChange\tClass")
	for i, res := range report.Results {
		previous, pct := "-", "-"
		if res.Previous != nil {
			previous = format.Price(*res.Previous)
		}
		if res.Percent != nil {
			pct = format.Percent(*res.Percent)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			res.Asset,
			report.Quotes[i].Symbol,
			previous,
			format.Price(res.Current),
			pct,
			res.Class,
		)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(writer, "%s\t-\t-\t-\t-\tunavailable: %s\n", f.Asset, sanitizeInline(f.Err.Error()))
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\ncycle %s: %d alerts, persisted=%t, notified=%t\n",
		report.CycleID, len(report.Alerts), report.Persisted, report.Notified)
	return nil
}
