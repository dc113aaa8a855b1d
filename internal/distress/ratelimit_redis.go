package distress

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindowGuard implements WindowGuard on a Redis key with the window as
// its TTL. It is a cache in front of the store query, not the source of truth:
// a flushed key only costs one extra database round trip.
type RedisWindowGuard struct {
	client *redis.Client
	window time.Duration
}

func NewRedisWindowGuard(client *redis.Client, window time.Duration) *RedisWindowGuard {
	return &RedisWindowGuard{client: client, window: window}
}

func (g *RedisWindowGuard) Recent(ctx context.Context, userID string) (bool, error) {
	n, err := g.client.Exists(ctx, g.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check distress window marker: %w", err)
	}
	return n > 0, nil
}

func (g *RedisWindowGuard) Mark(ctx context.Context, userID string) error {
	if err := g.client.Set(ctx, g.key(userID), "1", g.window).Err(); err != nil {
		return fmt.Errorf("set distress window marker: %w", err)
	}
	return nil
}

func (g *RedisWindowGuard) key(userID string) string {
	return "distress:window:" + userID
}
