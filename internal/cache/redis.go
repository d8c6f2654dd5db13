package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultRedisTTL is the fallback expiry for persistent records.
const DefaultRedisTTL = time.Hour

const redisKeyPrefix = "llmcache:"

// redisRecord is the stored shape: the absolute expiry travels with the
// value so a restarted process (or a Redis without per-key TTLs, as in some
// test servers) still honors it on read.
type redisRecord struct {
	ExpiresAt int64           `json:"expires_at"`
	Value     json.RawMessage `json:"value"`
}

// Redis is the persistent tier. Keys are addressed by a SHA-256 of the
// request fingerprint so arbitrary fingerprints map to safe storage keys.
// Records found corrupt or past their expiry are deleted on read and
// reported as misses; Redis errors degrade to misses rather than failing
// the caller.
type Redis struct {
	client     *redis.Client
	defaultTTL time.Duration

	now func() time.Time
}

// NewRedis creates a persistent tier over client. A nil client returns nil,
// which the tiered store treats as "no persistent tier".
func NewRedis(client *redis.Client, defaultTTL time.Duration) *Redis {
	if client == nil {
		return nil
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultRedisTTL
	}
	return &Redis{
		client:     client,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}

// Get retrieves the payload stored for key, deleting expired or unreadable
// records on the way.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	k := redisKey(key)

	raw, err := r.client.Get(ctx, k).Result()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", k).Msg("Redis get error, treating as cache miss")
		}
		return nil, false
	}

	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Warn().Err(err).Str("key", k).Msg("Corrupt cache record, deleting")
		r.client.Del(ctx, k)
		return nil, false
	}
	if rec.ExpiresAt <= r.now().Unix() {
		r.client.Del(ctx, k)
		return nil, false
	}
	return rec.Value, true
}

// Set stores value under key with an absolute expiry computed now. The
// native Redis expiration is set as well so abandoned records do not
// accumulate. Write failures are logged, never propagated.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	rec := redisRecord{
		ExpiresAt: r.now().Add(ttl).Unix(),
		Value:     json.RawMessage(value),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode cache record")
		return
	}
	if err := r.client.Set(ctx, redisKey(key), data, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to write persistent cache record")
	}
}

// Delete removes the record for key.
func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, redisKey(key)).Err(); err != nil {
		log.Debug().Err(err).Msg("Failed to delete persistent cache record")
	}
}

// Clear removes every record written by this tier.
func (r *Redis) Clear(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	count := 0
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Warn().Err(err).Str("key", iter.Val()).Msg("Failed to delete cache key")
			continue
		}
		count++
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Msg("Persistent cache clear incomplete")
		return
	}
	log.Debug().Int("keys_deleted", count).Msg("Persistent cache cleared")
}
