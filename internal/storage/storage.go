// Package storage provides the durable key/value slots client state is
// mirrored to.
package storage

import (
	"context"
	"fmt"

	"chatmallu/client/pkg/config"
	"chatmallu/client/shared/redis"
)

// KV is a flat string key/value store.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Scan returns all pairs whose key starts with prefix.
	Scan(ctx context.Context, prefix string) (map[string]string, error)
	Close() error
}

// Open returns the backend selected by cfg.Storage.Driver.
func Open(ctx context.Context, cfg *config.Config) (KV, error) {
	switch cfg.Storage.Driver {
	case "", "sqlite":
		return NewSQLite(ctx, cfg.Storage.SQLitePath)
	case "postgres":
		db, err := config.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewGorm(db)
	case "redis":
		client := redis.NewRedisClient(redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := client.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Storage.Redis.Addr, err)
		}
		return NewRedis(client), nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Ping checks that the backend answers a read.
func Ping(ctx context.Context, kv KV) error {
	_, _, err := kv.Get(ctx, "chatmallu:ping")
	return err
}
