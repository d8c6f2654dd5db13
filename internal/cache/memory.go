package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Default sizing for the in-memory tier.
const (
	DefaultMaxEntries = 128
	DefaultMemoryTTL  = 5 * time.Minute
)

type memoryEntry struct {
	key        string
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !now.Before(e.insertedAt.Add(e.ttl))
}

// Memory is the bounded fast tier: at most maxEntries live entries, evicted
// least-recently-used first when the bound is exceeded regardless of
// remaining TTL. Expired entries count as misses and are purged lazily on
// access. Safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	maxEntries int
	defaultTTL time.Duration
	order      *list.List // front = most recently used
	items      map[string]*list.Element

	now func() time.Time
}

// NewMemory creates a memory tier with the given capacity and default TTL.
// Non-positive arguments fall back to the defaults.
func NewMemory(maxEntries int, defaultTTL time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultMemoryTTL
	}
	return &Memory{
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		order:      list.New(),
		items:      make(map[string]*list.Element),
		now:        time.Now,
	}
}

// Get returns the value for key if present and unexpired, refreshing its
// recency. An expired entry is removed and reported as a miss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if entry.expired(m.now()) {
		m.removeElement(el)
		return nil, false
	}
	m.order.MoveToFront(el)
	return entry.value, true
}

// Set inserts or replaces the value for key. When the entry count exceeds
// the bound, the least-recently-used entry is evicted.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.insertedAt = m.now()
		entry.ttl = ttl
		m.order.MoveToFront(el)
		return
	}

	el := m.order.PushFront(&memoryEntry{
		key:        key,
		value:      value,
		insertedAt: m.now(),
		ttl:        ttl,
	})
	m.items[key] = el

	if m.order.Len() > m.maxEntries {
		if oldest := m.order.Back(); oldest != nil {
			m.removeElement(oldest)
		}
	}
}

// Delete removes key if present.
func (m *Memory) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.removeElement(el)
	}
}

// Clear removes every entry.
func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order.Init()
	m.items = make(map[string]*list.Element)
}

// Len reports the number of physically resident entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// removeElement must be called with the lock held.
func (m *Memory) removeElement(el *list.Element) {
	m.order.Remove(el)
	delete(m.items, el.Value.(*memoryEntry).key)
}
