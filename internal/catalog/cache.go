package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "catalog:ref:"

// Cache wraps Redis based caching of resolved references. The TTL is injected
// so deployments can tune how long stale mappings survive an update made
// directly in the database.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching, every
// lookup then goes straight to the loader.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Fetch loads a cached reference or populates it using the loader. Negative
// results are not cached: an unknown code stays a repository round trip until
// its mapping appears.
func (c *Cache) Fetch(ctx context.Context, externalCode string, loader func(context.Context) (Reference, error)) (Reference, error) {
	if loader == nil {
		return Reference{}, errors.New("catalog: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key := cacheKeyPrefix + externalCode
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var ref Reference
		if uerr := json.Unmarshal(payload, &ref); uerr == nil {
			return ref, nil
		}
		// Unreadable entry, fall through and rebuild it.
	} else if !errors.Is(err, redis.Nil) {
		return Reference{}, err
	}
	ref, err := loader(ctx)
	if err != nil {
		return Reference{}, err
	}
	raw, err := json.Marshal(ref)
	if err != nil {
		return Reference{}, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return Reference{}, err
	}
	return ref, nil
}

// Invalidate drops the cached entry for one external code.
func (c *Cache) Invalidate(ctx context.Context, externalCode string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, cacheKeyPrefix+externalCode).Err()
}

// Put primes the cache with an already-resolved reference.
func (c *Cache) Put(ctx context.Context, ref Reference) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+ref.ExternalCode, raw, c.ttl).Err()
}
