// Package lock provides per-domain sync locks: a Redis-backed lock shared by
// every process pointed at the same Redis, and an in-process fallback.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/rulesync/internal/core"
)

// DefaultPrefix namespaces lock keys in Redis.
const DefaultPrefix = "rulesync:lock:"

// releaseScript deletes the key only if it still holds our token, so a
// holder whose TTL expired cannot release a lock someone else now owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements core.Locker with SET NX and a TTL.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker connects to redisURL and verifies the connection.
func NewRedisLocker(redisURL string, ttl time.Duration, prefix string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLockerWithClient(client, ttl, prefix), nil
}

// NewRedisLockerWithClient creates a locker from an existing Redis client.
func NewRedisLockerWithClient(client *redis.Client, ttl time.Duration, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// key generates the Redis key for a domain
func (l *RedisLocker) key(domain string) string {
	return l.prefix + domain
}

// Acquire takes the lock for domain, failing with core.ErrLocked if another
// holder has it.
func (l *RedisLocker) Acquire(ctx context.Context, domain string) (func(context.Context) error, error) {
	key := l.key(domain)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrLocked, domain)
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}

// Close closes the Redis connection
func (l *RedisLocker) Close() error {
	return l.client.Close()
}

// LocalLocker implements core.Locker within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]string
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]string)}
}

// Acquire takes the lock for domain, failing with core.ErrLocked if it is held.
func (l *LocalLocker) Acquire(_ context.Context, domain string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[domain]; ok {
		return nil, fmt.Errorf("%w: %s", core.ErrLocked, domain)
	}
	token := uuid.NewString()
	l.held[domain] = token

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[domain] == token {
			delete(l.held, domain)
		}
		return nil
	}
	return release, nil
}
