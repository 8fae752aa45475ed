package accounts

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/garyjia/receipt-ledger/internal/domain/entity"
)

// TreeCache memoizes parsed trees by the content hash of their ledger text
type TreeCache struct {
	cache *gocache.Cache
}

// NewTreeCache creates a cache whose entries expire after ttl.
// A non-positive ttl keeps entries until they are evicted explicitly.
func NewTreeCache(ttl time.Duration) *TreeCache {
	if ttl <= 0 {
		return &TreeCache{cache: gocache.New(gocache.NoExpiration, 0)}
	}
	return &TreeCache{cache: gocache.New(ttl, 2*ttl)}
}

// Parse returns the cached tree for text, parsing it on a miss
func (c *TreeCache) Parse(text string) []*entity.AccountNode {
	key := hashText(text)

	if cached, ok := c.cache.Get(key); ok {
		return cached.([]*entity.AccountNode)
	}

	tree := Parse(text)
	c.cache.Set(key, tree, gocache.DefaultExpiration)
	return tree
}

// Len returns the number of cached trees
func (c *TreeCache) Len() int {
	return c.cache.ItemCount()
}

// Flush drops every cached tree
func (c *TreeCache) Flush() {
	c.cache.Flush()
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
