package speech

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of clips kept by the default LRU cache.
const DefaultCacheSize = 512

// Cache stores synthesised clips by key. Implementations must be safe for
// concurrent use and must not let callers mutate stored audio.
type Cache interface {
	// Get returns a copy of the clip stored under key.
	Get(key string) ([]byte, bool)

	// Set stores a copy of audio under key, replacing any previous clip.
	Set(key string, audio []byte)

	// Evict removes key and reports whether it was present.
	Evict(key string) bool

	// Len returns the number of stored clips.
	Len() int
}

// LRUCache is a bounded [Cache] that drops the least recently used clip
// once full.
type LRUCache struct {
	entries *lru.Cache[string, []byte]
}

var _ Cache = (*LRUCache)(nil)

// NewLRUCache returns an LRU cache holding at most size clips.
func NewLRUCache(size int) (*LRUCache, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("speech: create cache: %w", err)
	}
	return &LRUCache{entries: c}, nil
}

// Get implements [Cache].
func (c *LRUCache) Get(key string) ([]byte, bool) {
	audio, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	return clone(audio), true
}

// Set implements [Cache].
func (c *LRUCache) Set(key string, audio []byte) {
	c.entries.Add(key, clone(audio))
}

// Evict implements [Cache].
func (c *LRUCache) Evict(key string) bool {
	return c.entries.Remove(key)
}

// Len implements [Cache].
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
