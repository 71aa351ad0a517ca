package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps state in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	record PriceRecord
	saves  int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{record: NewPriceRecord()}
}

// NewMemoryStoreWith returns a MemoryStore pre-populated with a copy of record.
func NewMemoryStoreWith(record PriceRecord) *MemoryStore {
	return &MemoryStore{record: record.Clone()}
}

// Load implements StateStore.
func (m *MemoryStore) Load(ctx context.Context) (PriceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Clone(), ctx.Err()
}

// Save implements StateStore.
func (m *MemoryStore) Save(ctx context.Context, record PriceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = record.Clone()
	m.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close implements StateStore.
func (m *MemoryStore) Close() error {
	return nil
}

var _ StateStore = (*MemoryStore)(nil)
