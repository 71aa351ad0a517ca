package fetcher

import (
	"context"
	"fmt"
	"sync"
)

// Static serves quotes from an in-memory table. It backs the simulate-alert command.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewStatic builds a Static fetcher from quotes keyed by their Asset.
func NewStatic(quotes ...Quote) *Static {
	s := &Static{quotes: make(map[string]Quote, len(quotes))}
	for _, q := range quotes {
		s.quotes[q.Asset] = q
	}
	return s
}

// Set replaces the quote served for q.Asset.
func (s *Static) Set(q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[q.Asset] = q
}

// FetchQuote implements QuoteFetcher.
func (s *Static) FetchQuote(ctx context.Context, asset string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[asset]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s", ErrNotFound, asset)
	}
	return q, nil
}

var _ QuoteFetcher = (*Static)(nil)
