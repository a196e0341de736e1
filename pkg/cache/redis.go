package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Redis stores JSON documents under a key prefix with a TTL.
type Redis struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedis(cfg Config, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	logger.Info("Redis cache initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.String("prefix", cfg.Prefix),
	)

	return NewRedisFromClient(client, cfg.Prefix, logger)
}

func NewRedisFromClient(client *redis.Client, prefix string, logger *zap.Logger) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Get decodes the cached document into dst. A miss returns false and no error.
func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache key %q: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		// A corrupt entry behaves like a miss and is overwritten on the next Set.
		r.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %q: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key %q: %w", key, err)
	}
	return nil
}

func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
