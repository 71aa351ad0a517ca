package fetcher

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates the quote service returned no trading pair for the asset.
	ErrNotFound = errors.New("fetcher: no trading pair found")
	// ErrMalformedQuote indicates a pair was returned without a usable USD price.
	ErrMalformedQuote = errors.New("fetcher: malformed quote")
)

// Quote is a single price observation for one asset.
type Quote struct {
	Asset  string
	Price  decimal.Decimal
	Venue  string
	Symbol string
}

// QuoteFetcher retrieves the current quote for one asset identifier.
// Implementations must be safe for concurrent use.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, asset string) (Quote, error)
}
