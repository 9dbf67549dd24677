package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

const limiterRetry = 250 * time.Millisecond

// RedisLimiter shares a fixed number of judge slots between every replica
// using the same judge credential. Each slot is a key that expires after
// the TTL in case its holder dies.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	slots  int
	ttl    time.Duration
}

// NewRedisLimiter connects to Redis and returns a limiter with slots keys
// under scope
func NewRedisLimiter(ctx context.Context, address, password string, db int, scope string, slots int, ttl time.Duration) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisLimiter(client, scope, slots, ttl), nil
}

func newRedisLimiter(client *redis.Client, scope string, slots int, ttl time.Duration) *RedisLimiter {
	if slots < 1 {
		slots = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLimiter{
		client: client,
		prefix: "screening:judge:" + scope + ":",
		slots:  slots,
		ttl:    ttl,
	}
}

// Acquire takes the first free slot, retrying until ctx ends
func (l *RedisLimiter) Acquire(ctx context.Context) (func(), error) {
	value := uuid.New().String()

	for {
		for i := 0; i < l.slots; i++ {
			key := fmt.Sprintf("%s%d", l.prefix, i)
			ok, err := l.client.SetNX(ctx, key, value, l.ttl).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to acquire judge slot: %w", err)
			}
			if ok {
				return func() { l.release(key, value) }, nil
			}
		}

		t := time.NewTimer(limiterRetry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// release drops key if value still owns it
func (l *RedisLimiter) release(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, value).Err(); err != nil && err != redis.Nil {
		slog.Warn("failed to release judge slot", "error", err, "key", key)
	}
}

// Ping checks redis connectivity
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close closes the redis client
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
