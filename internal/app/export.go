package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"

	chart "github.com/wcharczuk/go-chart/v2"

	"token-price-alerts/internal/asset"
	"token-price-alerts/internal/format"
	"token-price-alerts/internal/storage"
)

// Export renders the persisted snapshot as CSV and/or a PNG bar chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	record, err := store.Load(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("persisted state could not be fully read")
	}
	if len(record) == 0 {
		a.Logger.Info().Msg("no prices recorded; nothing to export")
		return nil
	}

	a.Logger.Info().Int("assets", len(record)).Msg("exporting snapshot")

	if opts.CSVPath != "" {
		if err := writeRecordCSV(opts.CSVPath, record); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordPNG(opts.PNGPath, record); err != nil {
			return err
		}
	}

	return nil
}

func writeRecordCSV(path string, record storage.PriceRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"asset_id", "family", "price_usd", "display"}); err != nil {
		return err
	}
	for _, id := range record.Assets() {
		price := record[id]
		row := []string{id, string(asset.Classify(id)), price.String(), format.Price(price)}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeRecordPNG(path string, record storage.PriceRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	ids := record.Assets()
	bars := make([]chart.Value, 0, len(ids))
	var peak float64
	for _, id := range ids {
		v := record[id].InexactFloat64()
		if v > peak {
			peak = v
		}
		bars = append(bars, chart.Value{
			Label: shortLabel(id),
			Value: v,
		})
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4g")
	}
	graph := chart.BarChart{
		Title:    "Last known price (USD)",
		Width:    1280,
		Height:   720,
		BarWidth: 60,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: peak * 1.1},
			ValueFormatter: priceFormatter,
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func shortLabel(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:6] + ".." + id[len(id)-4:]
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
