package identity

import (
	lru "github.com/hashicorp/golang-lru"
)

// Mapping is the index row resolving a public key to the identity listing it.
type Mapping struct {
	Pub       string `json:"pub"`
	Link      string `json:"link"`
	Permalink string `json:"permalink"`
}

// Cache keeps recently resolved mappings across requests. The directory
// removes the entries of every key it writes.
type Cache interface {
	Get(pub string) (Mapping, bool)
	Add(m Mapping)
	Remove(pub string)
}

// LRUCache implements Cache with a fixed size LRU.
type LRUCache struct {
	cache *lru.Cache
}

// NewLRUCache ...
func NewLRUCache(size int) (*LRUCache, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{cache: cache}, nil
}

// Get implements Cache.
func (c *LRUCache) Get(pub string) (Mapping, bool) {
	v, ok := c.cache.Get(pub)
	if !ok {
		return Mapping{}, false
	}
	return v.(Mapping), true
}

// Add implements Cache.
func (c *LRUCache) Add(m Mapping) {
	c.cache.Add(m.Pub, m)
}

// Remove implements Cache.
func (c *LRUCache) Remove(pub string) {
	c.cache.Remove(pub)
}

// Len ...
func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// nopCache is used when no cache is configured.
type nopCache struct{}

func (nopCache) Get(string) (Mapping, bool) { return Mapping{}, false }
func (nopCache) Add(Mapping)                {}
func (nopCache) Remove(string)              {}
