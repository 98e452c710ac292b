// Package cache implements the two-tier cache: a bounded in-process L1 and
// a shared durable L2, fronting reads through both tiers and fanning
// writes through both, with namespace-scoped administration (stats, purge,
// health).
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/sirupsen/logrus"
)

// Cache is the combined L1+L2 cache facade every component depends on
// instead of talking to Redis or an in-process map directly.
type Cache struct {
	l1     *l1Tier
	l2     *l2Tier
	nsCfg  map[Namespace]domain.CacheNamespaceConfig
	logger *logrus.Entry
}

// New builds a Cache from the application configuration. If cfg.Redis.URL is
// empty, the L2 tier is left nil and the cache degrades to L1-only —
// useful for tests and for local development without a Redis instance.
func New(cfg *domain.Config, logger *logrus.Logger) (*Cache, error) {
	nsCfg := make(map[Namespace]domain.CacheNamespaceConfig, len(cfg.Cache))
	for name, c := range cfg.Cache {
		nsCfg[Namespace(name)] = c
	}

	c := &Cache{
		l1:     newL1Tier(),
		nsCfg:  nsCfg,
		logger: logger.WithField("component", "cache"),
	}

	if cfg.Redis.URL != "" {
		l2, err := newL2Tier(L2Config{
			RedisURL:    cfg.Redis.URL,
			PoolSize:    cfg.Redis.PoolSize,
			PoolTimeout: cfg.Redis.PoolTimeout,
			MaxRetries:  cfg.Redis.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		c.l2 = l2
	}

	return c, nil
}

func (c *Cache) configFor(ns Namespace) (ttl time.Duration, l1Max int) {
	cfg, ok := c.nsCfg[ns]
	if !ok {
		return time.Hour, 1000
	}
	ttl = time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	l1Max = cfg.L1MaxEntries
	return
}

// Get performs the read-through lookup: L1 first, then
// L2, promoting an L2 hit back into L1 so subsequent reads are local. dst
// must be a pointer; a miss leaves dst untouched and returns (false, nil).
func (c *Cache) Get(ctx context.Context, key Key, dst any) (bool, error) {
	ttl, l1Max := c.configFor(key.Namespace)

	if entry, ok := c.l1.get(key.Namespace, l1Max, key.Hash); ok {
		return true, json.Unmarshal(entry.value, dst)
	}

	if c.l2 == nil {
		return false, nil
	}

	raw, ok, err := c.l2.get(ctx, key)
	if err != nil {
		c.logger.WithError(err).WithField("namespace", key.Namespace).Warn("l2 cache read failed, treating as miss")
		return false, nil
	}
	if !ok {
		return false, nil
	}

	c.l1.set(key.Namespace, l1Max, key.Hash, raw, ttl)
	return true, json.Unmarshal(raw, dst)
}

// Set writes through both tiers. A namespace not present
// in configuration falls back to a conservative one-hour TTL.
func (c *Cache) Set(ctx context.Context, key Key, value any) error {
	ttl, l1Max := c.configFor(key.Namespace)

	raw, err := json.Marshal(value)
	if err != nil {
		return domain.NewCoreError(domain.KindCache, "failed to marshal cache value", err)
	}

	c.l1.set(key.Namespace, l1Max, key.Hash, raw, ttl)

	if c.l2 == nil {
		return nil
	}
	if err := c.l2.set(ctx, key, raw, ttl); err != nil {
		c.logger.WithError(err).WithField("namespace", key.Namespace).Warn("l2 cache write failed")
		return domain.NewCoreError(domain.KindCache, "failed to write l2 cache entry", err)
	}
	return nil
}

// Purge removes a single key from both tiers.
func (c *Cache) Purge(ctx context.Context, key Key) error {
	c.l1.purgeKey(key.Namespace, key.Hash)
	if c.l2 == nil {
		return nil
	}
	return c.l2.purgeKey(ctx, key)
}

// PurgeNamespace empties one namespace across both tiers — the operation
// the dependency registry (namespace.go) triggers on table mutation, and
// the one the admin surface exposes.
func (c *Cache) PurgeNamespace(ctx context.Context, ns Namespace) error {
	c.l1.purgeNamespace(ns)
	if c.l2 == nil {
		return nil
	}
	return c.l2.purgeNamespace(ctx, ns)
}

// PurgeTable invalidates every namespace registered against the given
// underlying table.
func (c *Cache) PurgeTable(ctx context.Context, table string) error {
	for _, ns := range NamespacesForTable(table) {
		if err := c.PurgeNamespace(ctx, ns); err != nil {
			return err
		}
	}
	return nil
}

// PurgeAll empties every namespace in both tiers.
func (c *Cache) PurgeAll(ctx context.Context) error {
	c.l1.purgeAll()
	if c.l2 == nil {
		return nil
	}
	return c.l2.purgeAll(ctx)
}

// NamespaceStats is the per-namespace admin stats row.
type NamespaceStats struct {
	Namespace      Namespace `json:"namespace"`
	TotalEntries   int       `json:"total_entries"`
	ActiveEntries  int       `json:"active_entries"`
	ExpiredEntries int       `json:"expired_entries"`
	TotalAccesses  int64     `json:"total_accesses"`
	SizeBytes      int       `json:"size_bytes"`
}

// Stats reports L1 occupancy for one namespace. L2-wide counters are not
// attributable per-namespace without a server-side key scan, so Stats
// reports what L1 tracks directly and leaves L2 sizing to Health.
//
// An entry past its TTL is still counted as present (the lru library only
// evicts it on its next Get, or when the namespace fills up) but split into
// ExpiredEntries rather than folded into ActiveEntries, so the admin
// surface can distinguish stale-but-not-yet-reclaimed space from live data.
func (c *Cache) Stats(ns Namespace) NamespaceStats {
	entries := c.l1.snapshot(ns)
	stats := NamespaceStats{Namespace: ns}
	now := time.Now()
	for _, e := range entries {
		stats.TotalEntries++
		stats.SizeBytes += e.sizeBytes
		stats.TotalAccesses += e.accessCount
		if now.After(e.expiresAt) {
			stats.ExpiredEntries++
		} else {
			stats.ActiveEntries++
		}
	}
	return stats
}

// AllStats reports Stats for every known namespace, in stable order.
func (c *Cache) AllStats() []NamespaceStats {
	out := make([]NamespaceStats, 0, len(KnownNamespaces))
	for _, ns := range KnownNamespaces {
		out = append(out, c.Stats(ns))
	}
	return out
}

// Health reports whether the durable tier is reachable. An L1-only cache
// (no Redis configured) is always healthy.
func (c *Cache) Health(ctx context.Context) error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.ping(ctx)
}

// Close releases the durable tier's connection pool.
func (c *Cache) Close() error {
	if c.l2 == nil {
		return nil
	}
	return c.l2.close()
}
