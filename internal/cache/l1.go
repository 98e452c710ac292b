package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// l1Entry is one in-process cache row. Expiry is checked on read; eviction
// by count is delegated to hashicorp/golang-lru/v2 rather than a
// hand-rolled linear LRU scan.
type l1Entry struct {
	value       []byte
	createdAt   time.Time
	expiresAt   time.Time
	accessCount int64
	lastAccess  time.Time
	sizeBytes   int
}

// l1Tier is the bounded, per-namespace in-process cache.
type l1Tier struct {
	mu         sync.Mutex
	caches     map[Namespace]*lru.Cache[string, *l1Entry]
	maxEntries map[Namespace]int
}

func newL1Tier() *l1Tier {
	return &l1Tier{
		caches:     make(map[Namespace]*lru.Cache[string, *l1Entry]),
		maxEntries: make(map[Namespace]int),
	}
}

func (l *l1Tier) cacheFor(ns Namespace, maxEntries int) *lru.Cache[string, *l1Entry] {
	l.mu.Lock()
	defer l.mu.Unlock()
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c, ok := l.caches[ns]
	if !ok || l.maxEntries[ns] != maxEntries {
		c, _ = lru.New[string, *l1Entry](maxEntries)
		l.caches[ns] = c
		l.maxEntries[ns] = maxEntries
	}
	return c
}

func (l *l1Tier) get(ns Namespace, maxEntries int, key string) (*l1Entry, bool) {
	c := l.cacheFor(ns, maxEntries)
	entry, ok := c.Get(key)
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.Remove(key)
		return nil, false
	}
	entry.accessCount++
	entry.lastAccess = time.Now()
	return entry, true
}

func (l *l1Tier) set(ns Namespace, maxEntries int, key string, value []byte, ttl time.Duration) {
	c := l.cacheFor(ns, maxEntries)
	now := time.Now()
	c.Add(key, &l1Entry{
		value:      value,
		createdAt:  now,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
		sizeBytes:  len(value),
	})
}

func (l *l1Tier) purgeKey(ns Namespace, key string) {
	l.mu.Lock()
	c, ok := l.caches[ns]
	l.mu.Unlock()
	if ok {
		c.Remove(key)
	}
}

func (l *l1Tier) purgeNamespace(ns Namespace) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.caches[ns]; ok {
		c.Purge()
	}
}

func (l *l1Tier) purgeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.caches {
		c.Purge()
	}
}

// snapshot returns every entry currently held in the namespace, expired or not,
// for stats computation. Uses Peek rather than get so reading stats never
// mutates access counts or evicts an expired-but-not-yet-reclaimed entry out
// from under a concurrent reader.
func (l *l1Tier) snapshot(ns Namespace) []*l1Entry {
	l.mu.Lock()
	c, ok := l.caches[ns]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	var out []*l1Entry
	for _, k := range c.Keys() {
		if v, ok := c.Peek(k); ok {
			out = append(out, v)
		}
	}
	return out
}
