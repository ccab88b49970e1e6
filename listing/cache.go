// Package listing caches directory listings per owner and sandbox-relative
// path. Both the upload coordinator and the tree-operation engine invalidate
// it after any mutation; the browse endpoint reads through it.
package listing

import (
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"cabinet/types"
)

type Cache struct {
	entries *ttlworker.Cache[string, []types.Entry]
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: ttlworker.NewCache[string, []types.Entry](ttl),
	}
}

// The owner id never contains '\n' (the principal middleware enforces its
// charset), so the composite key cannot collide across owners.
func key(owner, rel string) string {
	return owner + "\n" + rel
}

func (c *Cache) Get(owner, rel string) ([]types.Entry, bool) {
	v := c.entries.Get(key(owner, rel))
	if v == nil {
		return nil, false
	}
	return v, true
}

func (c *Cache) Set(owner, rel string, entries []types.Entry) {
	if entries == nil {
		entries = []types.Entry{}
	}
	c.entries.Set(key(owner, rel), entries)
}

// Invalidate implements types.ListingInvalidator.
func (c *Cache) Invalidate(owner, rel string) {
	c.entries.Delete(key(owner, rel))
}

var _ types.ListingInvalidator = (*Cache)(nil)
