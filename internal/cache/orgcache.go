// Package cache keeps hot org lookups out of Postgres. Every request resolves
// an org shortcode, so the mapping is cached in Redis with a short TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"parley/core/internal/store"
)

const orgKeyPrefix = "org:shortcode:"

// Loader fetches the org from the source of truth on a cache miss.
type Loader func(ctx context.Context, shortcode string) (store.Org, error)

type OrgCache struct {
	client *redis.Client
	ttl    time.Duration
	load   Loader
}

func NewOrgCache(client *redis.Client, ttl time.Duration, load Loader) *OrgCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OrgCache{client: client, ttl: ttl, load: load}
}

// Get returns the org for a shortcode, consulting Redis first. Cache failures
// fall through to the loader.
func (c *OrgCache) Get(ctx context.Context, shortcode string) (store.Org, error) {
	key := orgKeyPrefix + shortcode
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var org store.Org
		if err := json.Unmarshal(raw, &org); err == nil {
			return org, nil
		}
		log.Printf("cache: corrupt org entry for %s, reloading", shortcode)
	} else if err != redis.Nil {
		log.Printf("cache: get org %s: %v", shortcode, err)
	}

	org, err := c.load(ctx, shortcode)
	if err != nil {
		return store.Org{}, fmt.Errorf("load org %s: %w", shortcode, err)
	}
	c.set(ctx, key, org)
	return org, nil
}

// Refresh drops the cached entry and reloads it, e.g. after an org rename.
func (c *OrgCache) Refresh(ctx context.Context, shortcode string) (store.Org, error) {
	key := orgKeyPrefix + shortcode
	if err := c.client.Del(ctx, key).Err(); err != nil {
		log.Printf("cache: invalidate org %s: %v", shortcode, err)
	}
	org, err := c.load(ctx, shortcode)
	if err != nil {
		return store.Org{}, fmt.Errorf("load org %s: %w", shortcode, err)
	}
	c.set(ctx, key, org)
	return org, nil
}

func (c *OrgCache) set(ctx context.Context, key string, org store.Org) {
	raw, err := json.Marshal(org)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
}
