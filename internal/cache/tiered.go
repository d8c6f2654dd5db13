package cache

import (
	"context"
	"time"

	"github.com/llmguard/llmguard/internal/metrics"
)

// Tier labels for cache metrics.
const (
	TierMemory     = "memory"
	TierPersistent = "persistent"
)

// Tiered composes the fast in-memory tier with an optional persistent tier
// behind the plain Store contract. Lookups check the fast tier first and
// promote persistent hits into it; writes go to both tiers. Clear empties
// both tiers — use ClearFast for the in-memory tier alone.
type Tiered struct {
	fast       Store
	persistent Store // may be nil
}

// NewTiered builds the layered store. fast must be non-nil; persistent may
// be nil (typed nils are normalized away so a nil *Redis is safe to pass).
func NewTiered(fast Store, persistent Store) *Tiered {
	if r, ok := persistent.(*Redis); ok && r == nil {
		persistent = nil
	}
	return &Tiered{fast: fast, persistent: persistent}
}

// Get checks the fast tier, then the persistent tier, promoting a
// persistent hit into the fast tier.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := t.fast.Get(ctx, key); ok {
		metrics.Default().RecordCacheLookup(TierMemory, true)
		return v, true
	}
	metrics.Default().RecordCacheLookup(TierMemory, false)

	if t.persistent == nil {
		return nil, false
	}
	v, ok := t.persistent.Get(ctx, key)
	metrics.Default().RecordCacheLookup(TierPersistent, ok)
	if !ok {
		return nil, false
	}
	t.fast.Set(ctx, key, v, 0)
	return v, true
}

// Set writes to both tiers. The persistent write is best-effort.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	t.fast.Set(ctx, key, value, ttl)
	if t.persistent != nil {
		t.persistent.Set(ctx, key, value, ttl)
	}
}

// Delete removes key from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) {
	t.fast.Delete(ctx, key)
	if t.persistent != nil {
		t.persistent.Delete(ctx, key)
	}
}

// Clear empties both tiers.
func (t *Tiered) Clear(ctx context.Context) {
	t.fast.Clear(ctx)
	if t.persistent != nil {
		t.persistent.Clear(ctx)
	}
}

// ClearFast empties only the in-memory tier, leaving persistent records
// intact.
func (t *Tiered) ClearFast(ctx context.Context) {
	t.fast.Clear(ctx)
}

// ClearPersistent empties only the persistent tier, if one is configured.
func (t *Tiered) ClearPersistent(ctx context.Context) {
	if t.persistent != nil {
		t.persistent.Clear(ctx)
	}
}
