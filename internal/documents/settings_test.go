package documents

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestPrefixDefaultsFromIssueYear(t *testing.T) {
	store := newMemoryStore()
	resolver := NewPrefixResolver(store, nil, 0, testLogger())

	prefix := resolver.Prefix(context.Background(), 1, FamilyInvoice, issue2025)
	require.Equal(t, "INV-2025-", prefix)

	prefix = resolver.Prefix(context.Background(), 1, FamilyQuotation, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))
	require.Equal(t, "QT-2026-", prefix)
}

func TestPrefixUsesConfiguredOverride(t *testing.T) {
	store := newMemoryStore()
	store.prefixes[counterKey(1, FamilyInvoice)] = "ACME/INV/"
	resolver := NewPrefixResolver(store, newTestRedis(t), time.Minute, testLogger())

	prefix := resolver.Prefix(context.Background(), 1, FamilyInvoice, issue2025)
	require.Equal(t, "ACME/INV/", prefix)
}

func TestPrefixServedFromCache(t *testing.T) {
	store := newMemoryStore()
	store.prefixes[counterKey(1, FamilyInvoice)] = "ACME/INV/"
	resolver := NewPrefixResolver(store, newTestRedis(t), time.Minute, testLogger())

	require.Equal(t, "ACME/INV/", resolver.Prefix(context.Background(), 1, FamilyInvoice, issue2025))

	// A settings change is not visible until the cache entry expires or is
	// invalidated.
	store.prefixes[counterKey(1, FamilyInvoice)] = "ACME/NEW/"
	require.Equal(t, "ACME/INV/", resolver.Prefix(context.Background(), 1, FamilyInvoice, issue2025))

	resolver.Invalidate(context.Background(), 1, FamilyInvoice)
	require.Equal(t, "ACME/NEW/", resolver.Prefix(context.Background(), 1, FamilyInvoice, issue2025))
}

func TestPrefixCacheScopedPerBusinessAndFamily(t *testing.T) {
	store := newMemoryStore()
	store.prefixes[counterKey(1, FamilyInvoice)] = "ONE/INV/"
	store.prefixes[counterKey(2, FamilyInvoice)] = "TWO/INV/"
	resolver := NewPrefixResolver(store, newTestRedis(t), time.Minute, testLogger())

	require.Equal(t, "ONE/INV/", resolver.Prefix(context.Background(), 1, FamilyInvoice, issue2025))
	require.Equal(t, "TWO/INV/", resolver.Prefix(context.Background(), 2, FamilyInvoice, issue2025))
	require.Equal(t, "QT-2025-", resolver.Prefix(context.Background(), 1, FamilyQuotation, issue2025))
}
