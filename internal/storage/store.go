package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"token-price-alerts/internal/config"
)

var (
	// ErrNotConfigured indicates the backing client was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrCorruptState indicates persisted state could not be decoded.
	ErrCorruptState = errors.New("storage: corrupt state")
)

// StateStore persists the last-known price of every asset.
//
// Load returns an empty record when nothing has been saved yet. When the stored
// state is unreadable or violates the positive-price invariant it returns whatever
// could be recovered (possibly empty, never nil) and an error wrapping ErrCorruptState.
// Save replaces the stored state wholesale.
type StateStore interface {
	Load(ctx context.Context) (PriceRecord, error)
	Save(ctx context.Context, record PriceRecord) error
	Close() error
}

// AdvisoryLocker exposes cross-process mutual exclusion helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Open builds the StateStore selected by cfg.State.Driver.
func Open(ctx context.Context, cfg *config.Config) (StateStore, error) {
	switch cfg.State.Driver {
	case config.StateDriverFile, "":
		return NewFileStore(cfg.State.FilePath), nil
	case config.StateDriverPostgres:
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		store := NewPGStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	case config.StateDriverRedis:
		return NewRedisStore(ctx, cfg.Redis)
	case config.StateDriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state driver %q", cfg.State.Driver)
	}
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
