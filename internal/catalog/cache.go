package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a redis read-through cache for product lookups.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache constructs Cache with the given TTL.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func cacheKey(storeID, productID int64) string {
	return fmt.Sprintf("catalog:product:%d:%d", storeID, productID)
}

// Get returns the cached product, reporting a miss as ok=false.
func (c *Cache) Get(ctx context.Context, storeID, productID int64) (Product, bool) {
	if c == nil || c.rdb == nil {
		return Product{}, false
	}
	raw, err := c.rdb.Get(ctx, cacheKey(storeID, productID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// treat a broken cache as a miss
			return Product{}, false
		}
		return Product{}, false
	}
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return Product{}, false
	}
	return p, true
}

// Set stores the product; cache errors are swallowed, the database remains
// authoritative.
func (c *Cache) Set(ctx context.Context, p Product) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, cacheKey(p.StoreID, p.ID), raw, c.ttl).Err()
}

// Invalidate drops the cached product.
func (c *Cache) Invalidate(ctx context.Context, storeID, productID int64) {
	if c == nil || c.rdb == nil {
		return
	}
	_ = c.rdb.Del(ctx, cacheKey(storeID, productID)).Err()
}
