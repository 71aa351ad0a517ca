package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"token-price-alerts/internal/asset"
	"token-price-alerts/internal/format"
	"token-price-alerts/internal/storage"
)

// Show prints the persisted last-known prices.
func (a *App) Show(ctx context.Context, out io.Writer) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	record, err := store.Load(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("persisted state could not be fully read")
	}
	return writeRecord(out, record, a.Config.Watch.Assets)
}

// writeRecord lists watched assets first, in configured order, followed by any
// stale entries left in the store.
func writeRecord(out io.Writer, record storage.PriceRecord, watched []string) error {
	if len(record) == 0 {
		fmt.Fprintln(out, "no prices recorded")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Asset\tFamily\tLast price\tRaw\tWatched")

	seen := make(map[string]struct{}, len(watched))
	for _, id := range watched {
		seen[id] = struct{}{}
		price, ok := record[id]
		if !ok {
			continue
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\tyes\n", id, asset.Classify(id), format.Price(price), price.String())
	}
	for _, id := range record.Assets() {
		if _, ok := seen[id]; ok {
			continue
		}
		price := record[id]
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\tno\n", id, asset.Classify(id), format.Price(price), price.String())
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
