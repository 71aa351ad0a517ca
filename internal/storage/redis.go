package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"token-price-alerts/internal/config"
)

// RedisStore keeps the price record in a single redis hash, one field per asset.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg.Key), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "tokenwatch:prices"
	}
	return &RedisStore{client: client, key: key}
}

// Load reads every field of the hash.
func (r *RedisStore) Load(ctx context.Context) (PriceRecord, error) {
	if r == nil || r.client == nil {
		return NewPriceRecord(), ErrNotConfigured
	}

	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return NewPriceRecord(), fmt.Errorf("failed to read prices from redis: %w", err)
	}

	record := NewPriceRecord()
	for assetID, raw := range fields {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return NewPriceRecord(), fmt.Errorf("%w: redis field %s: %v", ErrCorruptState, assetID, err)
		}
		record[assetID] = price
	}
	if dropped := record.sanitize(); dropped > 0 {
		return record, fmt.Errorf("%w: dropped %d non-positive prices", ErrCorruptState, dropped)
	}
	return record, nil
}

// Save writes all prices in one MULTI/EXEC transaction.
func (r *RedisStore) Save(ctx context.Context, record PriceRecord) error {
	if r == nil || r.client == nil {
		return ErrNotConfigured
	}
	if len(record) == 0 {
		return nil
	}

	values := make(map[string]any, len(record))
	for assetID, price := range record {
		values[assetID] = price.String()
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key, values)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write prices to redis: %w", err)
	}
	return nil
}

// Close releases the redis client.
func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

var _ StateStore = (*RedisStore)(nil)
