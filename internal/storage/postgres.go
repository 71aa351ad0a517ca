package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	createAssetPricesSQL = `CREATE TABLE IF NOT EXISTS asset_prices (
        asset_id   TEXT PRIMARY KEY,
        price_usd  NUMERIC NOT NULL CHECK (price_usd > 0),
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );`

	upsertAssetPriceSQL = `INSERT INTO asset_prices (
        asset_id,
        price_usd,
        updated_at
    ) VALUES (
        $1,$2,$3
    )
    ON CONFLICT (asset_id) DO UPDATE
    SET
        price_usd  = EXCLUDED.price_usd,
        updated_at = EXCLUDED.updated_at;`

	listAssetPricesSQL = `SELECT
        asset_id,
        price_usd::TEXT
    FROM asset_prices
    ORDER BY asset_id;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PGStore persists the price record in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// EnsureSchema creates the asset_prices table when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createAssetPricesSQL); err != nil {
		return fmt.Errorf("create asset_prices: %w", err)
	}
	return nil
}

// Load reads every stored asset price.
func (s *PGStore) Load(ctx context.Context) (PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return NewPriceRecord(), err
	}

	rows, err := pool.Query(ctx, listAssetPricesSQL)
	if err != nil {
		return NewPriceRecord(), fmt.Errorf("list asset prices: %w", err)
	}
	defer rows.Close()

	record := NewPriceRecord()
	for rows.Next() {
		var assetID, priceStr string
		if err := rows.Scan(&assetID, &priceStr); err != nil {
			return NewPriceRecord(), fmt.Errorf("scan asset price: %w", err)
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return NewPriceRecord(), fmt.Errorf("%w: asset %s: %v", ErrCorruptState, assetID, err)
		}
		record[assetID] = price
	}
	if err := rows.Err(); err != nil {
		return NewPriceRecord(), fmt.Errorf("iterate asset prices: %w", err)
	}
	if dropped := record.sanitize(); dropped > 0 {
		return record, fmt.Errorf("%w: dropped %d non-positive prices", ErrCorruptState, dropped)
	}
	return record, nil
}

// Save upserts every entry of record inside one transaction.
func (s *PGStore) Save(ctx context.Context, record PriceRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(record) == 0 {
		return nil
	}

	now := time.Now().UTC()
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, assetID := range record.Assets() {
			batch.Queue(upsertAssetPriceSQL, assetID, record[assetID].String(), now)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert asset prices: %w", err)
		}
		return nil
	})
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PGStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// Closing the session drops any advisory lock it still holds.
			_ = conn.Conn().Close(ctxUnlock)
		}
		conn.Release()
	}
	return unlock, true, nil
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

var (
	_ StateStore     = (*PGStore)(nil)
	_ AdvisoryLocker = (*PGStore)(nil)
)
