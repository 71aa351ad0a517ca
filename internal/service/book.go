package service

import (
	"sync"

	"token-price-alerts/internal/alerting"
	"token-price-alerts/internal/change"
	"token-price-alerts/internal/fetcher"
	"token-price-alerts/internal/storage"
)

// priceBook guards the in-memory price record shared by cycles.
type priceBook struct {
	mu     sync.RWMutex
	record storage.PriceRecord
}

func newPriceBook() *priceBook {
	return &priceBook{record: storage.NewPriceRecord()}
}

func (b *priceBook) replace(record storage.PriceRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record = record.Clone()
}

func (b *priceBook) snapshot() storage.PriceRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.record.Clone()
}

// apply evaluates every quote against the stored price and then records the
// current price, whether or not an alert fired. It returns the per-asset results,
// the alert lines in quote order, and a copy of the updated record.
func (b *priceBook) apply(quotes []fetcher.Quote) ([]change.Result, []alerting.AlertLine, storage.PriceRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	results := make([]change.Result, 0, len(quotes))
	var lines []alerting.AlertLine
	for _, q := range quotes {
		res := change.Evaluate(q.Asset, q.Price, b.record)
		results = append(results, res)
		if res.Class.IsAlert() {
			lines = append(lines, alerting.AlertLine{Quote: q, Result: res})
		}
		b.record[q.Asset] = q.Price
	}
	return results, lines, b.record.Clone()
}
