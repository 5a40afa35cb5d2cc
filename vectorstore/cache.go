package vectorstore

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/halcyonlabs/dupscan/ast"
)

// DefaultCacheTTL is how long query results stay fresh.
const DefaultCacheTTL = 300 * time.Second

// cacheEntry is one cached query result with its expiry.
type cacheEntry struct {
	matches   []Match
	expiresAt time.Time
}

// queryCache is a TTL cache for similarity query results, keyed by the
// probe embedding and query parameters.
//
// Thread Safety: safe for concurrent use.
type queryCache struct {
	mu      sync.Mutex
	entries map[uint64]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// newQueryCache creates a cache with the given TTL. Non-positive TTL
// selects DefaultCacheTTL.
func newQueryCache(ttl time.Duration) *queryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &queryCache{
		entries: make(map[uint64]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// key hashes the embedding bytes and query parameters into the cache key.
func (c *queryCache) key(q Query) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, v := range q.Embedding {
		binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
		h.Write(buf[:4])
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(q.TopK))
	h.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(q.MinSimilarity))
	h.Write(buf[:])
	return h.Sum64()
}

// get returns the cached matches for q if present and fresh. Expired
// entries are evicted on access.
func (c *queryCache) get(q Query) ([]Match, bool) {
	k := c.key(q)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, k)
		return nil, false
	}
	return entry.matches, true
}

// put stores matches for q. Storing the same key again is harmless and
// just refreshes the expiry.
func (c *queryCache) put(q Query, matches []Match) {
	k := c.key(q)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[k] = cacheEntry{
		matches:   matches,
		expiresAt: c.now().Add(c.ttl),
	}
}

// len returns the number of cached entries, including expired ones not yet
// evicted.
func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CachedStore wraps a Store with a TTL query cache.
//
// Only successful queries are cached. Failed queries are returned as
// errors and leave the cache untouched, so a transient outage never gets
// pinned as an empty result.
type CachedStore struct {
	inner Store
	cache *queryCache
}

// NewCachedStore wraps inner with a query cache using the given TTL.
func NewCachedStore(inner Store, ttl time.Duration) *CachedStore {
	initMetrics()
	return &CachedStore{
		inner: inner,
		cache: newQueryCache(ttl),
	}
}

// BatchInsert delegates to the inner store.
//
// Inserts do not invalidate cached queries; within one scan run the index
// is append-only and the short TTL bounds staleness across runs.
func (s *CachedStore) BatchInsert(ctx context.Context, symbols []*ast.Symbol) error {
	return s.inner.BatchInsert(ctx, symbols)
}

// FindSimilar serves fresh cached results and delegates misses to the
// inner store.
func (s *CachedStore) FindSimilar(ctx context.Context, q Query) ([]Match, error) {
	if matches, ok := s.cache.get(q); ok {
		recordCacheLookup(ctx, true)
		return matches, nil
	}
	recordCacheLookup(ctx, false)

	matches, err := s.inner.FindSimilar(ctx, q)
	if err != nil {
		return nil, err
	}
	s.cache.put(q, matches)
	return matches, nil
}

// Close delegates to the inner store.
func (s *CachedStore) Close() error {
	return s.inner.Close()
}
