package kv

import (
	"github.com/VictoriaMetrics/fastcache"
	"github.com/holiman/bloomfilter/v2"
)

// CachedStore wraps a Store with a fastcache hot-node cache and a bloom
// filter that lets Has/Get short-circuit misses without touching disk —
// the same two-layer shape real go-ethereum puts in front of its trie
// node database.
type CachedStore struct {
	Store
	cache  *fastcache.Cache
	filter *bloomfilter.Filter
}

// NewCachedStore wraps db with an in-memory cache of the given byte size
// and a bloom filter sized for roughly expectedItems keys. The filter is
// warmed by iterating db's existing contents, so wrapping a non-empty
// persistent store (e.g. a Pebble database reopened across restarts)
// never reports a false negative for a key written in a prior process.
func NewCachedStore(db Store, cacheBytes int, expectedItems uint64) *CachedStore {
	filter, _ := bloomfilter.NewOptimal(expectedItems, 0.001)
	if filter != nil {
		it := db.NewIterator(nil, nil)
		for it.Next() {
			filter.Add(hashKey(it.Key()))
		}
		it.Release()
	}
	return &CachedStore{
		Store:  db,
		cache:  fastcache.New(cacheBytes),
		filter: filter,
	}
}

func (c *CachedStore) Get(key []byte) ([]byte, error) {
	if c.filter != nil && !c.filter.Contains(hashKey(key)) {
		return nil, ErrNotFound
	}
	if val, ok := c.cache.HasGet(nil, key); ok {
		return val, nil
	}
	val, err := c.Store.Get(key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, val)
	return val, nil
}

func (c *CachedStore) Put(key, value []byte) error {
	if err := c.Store.Put(key, value); err != nil {
		return err
	}
	c.cache.Set(key, value)
	if c.filter != nil {
		c.filter.Add(hashKey(key))
	}
	return nil
}

func (c *CachedStore) Has(key []byte) (bool, error) {
	if c.filter != nil && !c.filter.Contains(hashKey(key)) {
		return false, nil
	}
	if c.cache.Has(key) {
		return true, nil
	}
	return c.Store.Has(key)
}

// fnvKey implements bloomfilter.Hashable over an arbitrary-length key via
// FNV-1a, so trie node hashes (already uniformly distributed) can be fed
// to the filter without an extra allocation-heavy hash.Hash64.
type fnvKey uint64

func (k fnvKey) Sum64() uint64 { return uint64(k) }

func hashKey(key []byte) fnvKey {
	var h uint64 = 14695981039346656037
	for _, b := range key {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return fnvKey(h)
}
