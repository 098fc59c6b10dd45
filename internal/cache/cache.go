// Package cache is the in-process cache store behind the lookup API.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/amaumene/subtis/internal/metrics"
)

// Store keeps raw values by key. Entries do not expire unless a TTL is set.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

// MemoryStore implements Store with go-cache
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a store; ttl <= 0 keeps entries until restart
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	expiration := ttl
	cleanup := 10 * time.Minute
	if ttl <= 0 {
		expiration = gocache.NoExpiration
		cleanup = 0
	}
	return &MemoryStore{cache: gocache.New(expiration, cleanup)}
}

// Get returns the value stored under key
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	value, ok := v.([]byte)
	return value, ok
}

// Set stores value under key with the default expiration
func (s *MemoryStore) Set(key string, value []byte) {
	s.cache.SetDefault(key, value)
	metrics.CacheEntries.Set(float64(s.cache.ItemCount()))
}

// Len returns the number of cached entries
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
