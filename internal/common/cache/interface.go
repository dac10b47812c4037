package cache

import (
	"context"
	"time"
)

// Cache is the key-value surface the server needs from Redis.
type Cache interface {
	// Get returns "" with a nil error when the key does not exist.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value; a zero ttl never expires.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// SetNX sets the value only if the key does not exist and reports whether it did.
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)

	// Incr increments an integer key, creating it at 1.
	Incr(ctx context.Context, key string) (int64, error)

	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns -1 for keys without expiry and -2 for missing keys.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Ping(ctx context.Context) error
	Close() error
}
