// Package cache provides the two response-cache tiers used by the API
// client: a bounded in-memory LRU with per-entry TTLs and a Redis-backed
// persistent tier, both behind the same Store contract so the client can
// compose them as a single layered cache.
package cache

import (
	"context"
	"time"
)

// Store is the contract shared by every cache tier. Values are opaque byte
// payloads (the client stores JSON-encoded responses). A zero or negative
// ttl on Set means the tier's default TTL.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
}
