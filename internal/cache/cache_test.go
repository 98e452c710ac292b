package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *domain.Config {
	return &domain.Config{
		Cache: map[string]domain.CacheNamespaceConfig{
			"annotations": {TTLSeconds: 3600, L1MaxEntries: 10},
			"hgnc":        {TTLSeconds: 1, L1MaxEntries: 10},
		},
	}
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	c, err := New(testConfig(), logger)
	require.NoError(t, err)
	require.Nil(t, c.l2, "no redis url configured, l2 tier should be nil")
	return c
}

func TestCacheSetAndGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	key := NewKey(NamespaceAnnotations, "BRCA1")

	var out map[string]any
	found, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.False(t, found)

	err = c.Set(ctx, key, map[string]any{"percentage_score": 85.0})
	require.NoError(t, err)

	found, err = c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 85.0, out["percentage_score"])
}

func TestCacheKeyOrderIndependence(t *testing.T) {
	a := NewKey(NamespaceAnnotations, []string{"BRCA1", "PKD1"})
	b := NewKey(NamespaceAnnotations, []string{"PKD1", "BRCA1"})
	assert.Equal(t, a, b, "argument list order must not change the cache key")
}

func TestCacheExpiration(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := NewKey(NamespaceHGNC, "HGNC:1100")

	err := c.Set(ctx, key, "BRCA1")
	require.NoError(t, err)

	var out string
	found, err := c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(1100 * time.Millisecond)

	found, err = c.Get(ctx, key, &out)
	require.NoError(t, err)
	assert.False(t, found, "entry should have expired")
}

func TestCachePurgeNamespace(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := NewKey(NamespaceAnnotations, "BRCA1")

	require.NoError(t, c.Set(ctx, key, "value"))

	var out string
	found, _ := c.Get(ctx, key, &out)
	require.True(t, found)

	require.NoError(t, c.PurgeNamespace(ctx, NamespaceAnnotations))

	found, _ = c.Get(ctx, key, &out)
	assert.False(t, found)
}

func TestCachePurgeTableInvalidatesRegisteredNamespace(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := NewKey(NamespaceAnnotations, "BRCA1")

	require.NoError(t, c.Set(ctx, key, "value"))

	require.NoError(t, c.PurgeTable(ctx, "gene_evidence"))

	var out string
	found, _ := c.Get(ctx, key, &out)
	assert.False(t, found, "gene_evidence mutation must purge the annotations namespace")
}

func TestCacheStatsTracksL1Occupancy(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, NewKey(NamespaceAnnotations, "BRCA1"), "a"))
	require.NoError(t, c.Set(ctx, NewKey(NamespaceAnnotations, "PKD1"), "b"))

	stats := c.Stats(NamespaceAnnotations)
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 2, stats.ActiveEntries)
	assert.Equal(t, 0, stats.ExpiredEntries)
}

func TestCacheStatsSplitsExpiredFromActiveEntries(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	ns := NamespaceAnnotations

	require.NoError(t, c.Set(ctx, NewKey(ns, "BRCA1"), "a"))
	stats := c.Stats(ns)
	require.Equal(t, 1, stats.TotalEntries)

	entries := c.l1.snapshot(ns)
	require.Len(t, entries, 1)
	entries[0].expiresAt = time.Now().Add(-time.Minute)

	stats = c.Stats(ns)
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 0, stats.ActiveEntries)
	assert.Equal(t, 1, stats.ExpiredEntries)
}

func TestCacheHealthWithoutRedisIsAlwaysHealthy(t *testing.T) {
	c := newTestCache(t)
	assert.NoError(t, c.Health(context.Background()))
}

func TestNamespacesForTableUnknownTableReturnsNil(t *testing.T) {
	assert.Nil(t, NamespacesForTable("no_such_table"))
}
