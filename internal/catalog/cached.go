package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/anime-shed/sku-image-audit/internal/logger"
)

const cacheKeyPrefix = "sku-images:"

// CachedResolver keeps resolved image lists in Redis. Cache failures only
// cost a lookup; they never fail a SKU.
type CachedResolver struct {
	next   Resolver
	client redis.UniversalClient
	ttl    time.Duration
}

func NewCachedResolver(next Resolver, client redis.UniversalClient, ttl time.Duration) *CachedResolver {
	return &CachedResolver{next: next, client: client, ttl: ttl}
}

func (c *CachedResolver) ResolveImages(ctx context.Context, sku string) ([]string, error) {
	key := cacheKeyPrefix + normalizeSku(sku)

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var urls []string
		if err := sonic.Unmarshal(cached, &urls); err == nil {
			return urls, nil
		}
		logger.WithField("key", key).Warn("Discarding unreadable catalog cache entry")
	case !errors.Is(err, redis.Nil):
		logger.WithError(err).WithField("sku", sku).Warn("Catalog cache read failed")
	}

	urls, err := c.next.ResolveImages(ctx, sku)
	if err != nil {
		return nil, err
	}

	if urls == nil {
		urls = []string{}
	}
	payload, err := sonic.Marshal(urls)
	if err == nil {
		err = c.client.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		logger.WithError(err).WithField("sku", sku).Warn("Catalog cache write failed")
	}
	return urls, nil
}
