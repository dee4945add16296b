package storage

import (
	"context"
	"time"
)

// KeyValueStore is the durable per-session storage the client persists into.
// A zero ttl means the key never expires.
type KeyValueStore interface {
	// Get returns ok=false when the key does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}
