package storage

import (
	"sort"

	"github.com/shopspring/decimal"
)

// PriceRecord maps an asset identifier to the last price observed for it.
// Entries are overwritten but never removed once an asset has been quoted.
type PriceRecord map[string]decimal.Decimal

// NewPriceRecord returns an empty record.
func NewPriceRecord() PriceRecord {
	return make(PriceRecord)
}

// Clone returns an independent copy of r.
func (r PriceRecord) Clone() PriceRecord {
	out := make(PriceRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Equal reports whether both records hold the same assets at the same prices.
func (r PriceRecord) Equal(other PriceRecord) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		o, ok := other[k]
		if !ok || !o.Equal(v) {
			return false
		}
	}
	return true
}

// Assets lists the identifiers in r in lexical order.
func (r PriceRecord) Assets() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// sanitize drops entries that violate the strictly-positive price invariant and
// reports how many were removed.
func (r PriceRecord) sanitize() int {
	dropped := 0
	for k, v := range r {
		if !v.IsPositive() {
			delete(r, k)
			dropped++
		}
	}
	return dropped
}
