package cache

import (
	"context"
	"sync"
	"time"
)

// pruneEvery is the number of stores between sweeps of expired items.
const pruneEvery = 1024

type item struct {
	value   string
	expires time.Time
}

// Expired reports whether the item is past its expiry at now.
func (i *item) Expired(now time.Time) bool {
	return !now.Before(i.expires)
}

type MemCache struct {
	noCache bool
	ttl     time.Duration
	now     func() time.Time

	mu     sync.Mutex
	items  map[string]*item
	stores int
}

func NewMemCache(noCache bool, ttl time.Duration) ICache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemCache{
		noCache: noCache,
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]*item),
	}
}

// Store keeps the first value written for a key until it expires.
func (m *MemCache) Store(ctx context.Context, key string, data string) error {
	if m.noCache {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.stores++
	if m.stores%pruneEvery == 0 {
		m.pruneLocked(now)
	}
	if cur, ok := m.items[key]; ok && !cur.Expired(now) {
		return nil
	}
	m.items[key] = &item{value: data, expires: now.Add(m.ttl)}
	return nil
}

func (m *MemCache) Load(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key]
	if !ok {
		return "", false, nil
	}
	if v.Expired(m.now()) {
		delete(m.items, key)
		return "", false, nil
	}
	return v.value, true, nil
}

func (m *MemCache) Exists(ctx context.Context, key string) bool {
	_, ok, _ := m.Load(ctx, key)
	return ok
}

func (m *MemCache) IsCacheDisabled() bool {
	return m.noCache
}

// Len returns the number of items, expired ones included until they are pruned.
func (m *MemCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemCache) pruneLocked(now time.Time) {
	for k, v := range m.items {
		if v.Expired(now) {
			delete(m.items, k)
		}
	}
}
