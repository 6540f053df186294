package repository

import (
	"context"
	"fmt"
	"time"

	"autoagenda/internal/config"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient builds a redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}
	return redis.NewClient(options)
}

// RedisSlotLocker backs slot locks with SET NX, giving cross-process
// mutual exclusion when several instances share one redis.
type RedisSlotLocker struct {
	client *redis.Client
}

func NewRedisSlotLocker(client *redis.Client) *RedisSlotLocker {
	return &RedisSlotLocker{client: client}
}

// TryAcquire is an atomic test-and-set: SET NX either claims the key for
// owner or leaves it untouched. The TTL guards against a crashed holder.
func (l *RedisSlotLocker) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if l.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire slot lock: %w", err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0
`)

// Release deletes the key only when owner still holds it, so a lock that
// expired and was re-acquired by someone else is never stolen back.
func (l *RedisSlotLocker) Release(ctx context.Context, key, owner string) error {
	if l.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := releaseScript.Run(ctx, l.client, []string{key}, owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// RedisAlertWindow counts alert emissions with INCR, arming the expiry on
// the first hit of each window.
type RedisAlertWindow struct {
	client *redis.Client
	key    string
}

func NewRedisAlertWindow(client *redis.Client, key string) *RedisAlertWindow {
	if key == "" {
		key = "alerts:window"
	}
	return &RedisAlertWindow{client: client, key: key}
}

func (w *RedisAlertWindow) Incr(ctx context.Context, window time.Duration) (int64, error) {
	if w.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	count, err := w.client.Incr(ctx, w.key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment alert window: %w", err)
	}
	if count == 1 {
		w.client.Expire(ctx, w.key, window)
	}
	return count, nil
}

// Ping checks the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
