package storage

import (
	"context"
	"errors"

	"chatmallu/client/shared/redis"
)

// Redis stores slots as plain redis strings without expiry.
type Redis struct {
	client *redis.RedisClient
}

func NewRedis(client *redis.RedisClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key)
	if errors.Is(err, redis.ErrNil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, key, value, 0)
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key)
}

func (r *Redis) Scan(ctx context.Context, prefix string) (map[string]string, error) {
	return r.client.ScanPrefix(ctx, prefix)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
