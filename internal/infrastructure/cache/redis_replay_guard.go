package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/cardhub/connectors/internal/domain/shared"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "hub:replay:"

// RedisReplayGuard shares claims between instances through Redis.
type RedisReplayGuard struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisReplayGuard connects to Redis and verifies the connection.
func NewRedisReplayGuard(cfg RedisConfig, keyPrefix string) (*RedisReplayGuard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisReplayGuardWithClient(client, keyPrefix), nil
}

// NewRedisReplayGuardWithClient wraps an existing client.
func NewRedisReplayGuardWithClient(client *redis.Client, keyPrefix string) *RedisReplayGuard {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisReplayGuard{client: client, keyPrefix: keyPrefix}
}

// Claim uses SETNX with the TTL so concurrent instances agree on one winner.
func (g *RedisReplayGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim replay key: %w", err)
	}
	return ok, nil
}

// Release deletes the claim.
func (g *RedisReplayGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release replay key: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (g *RedisReplayGuard) Close() error {
	return g.client.Close()
}

var _ shared.ReplayGuard = (*RedisReplayGuard)(nil)
