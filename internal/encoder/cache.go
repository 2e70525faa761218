package encoder

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default number of query vectors kept in memory.
const DefaultCacheSize = 10000

// vectorCache is an in-memory LRU cache of encoded vectors keyed by content
// hash. Only semantic-path vectors are cached; fallback zeros are cheaper
// to rebuild than to look up.
type vectorCache struct {
	cache *lru.Cache[string, []float32]
}

func newVectorCache(maxLen int) *vectorCache {
	if maxLen <= 0 {
		maxLen = DefaultCacheSize
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Only possible with a non-positive size, which is handled above.
		cache, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &vectorCache{cache: cache}
}

// get returns a copy of the cached vector so caller mutations cannot
// pollute the cache.
func (c *vectorCache) get(hash string) ([]float32, bool) {
	vec, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

func (c *vectorCache) set(hash string, vec []float32) {
	c.cache.Add(hash, vec)
}

func (c *vectorCache) len() int {
	return c.cache.Len()
}

// hashText computes the SHA-256 cache key for a text.
func hashText(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
