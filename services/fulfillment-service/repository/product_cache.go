package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yashrajoria/digital-fulfillment/services/fulfillment-service/models"
	"go.uber.org/zap"
)

const productCachePrefix = "catalog:product:"

// CachedProductRepository serves catalog lookups from Redis and falls back
// to next for misses. Redis failures degrade to next, never to an error.
type CachedProductRepository struct {
	next   ProductRepository
	redis  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedProductRepository(next ProductRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedProductRepository {
	return &CachedProductRepository{next: next, redis: client, ttl: ttl, logger: logger}
}

func (c *CachedProductRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productCachePrefix + id
	}

	cached, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		c.logger.Warn("catalog cache read failed", zap.Error(err))
		return c.next.FindByIDs(ctx, ids)
	}

	products := make([]models.Product, 0, len(ids))
	var misses []string
	for i, v := range cached {
		raw, ok := v.(string)
		if !ok {
			misses = append(misses, ids[i])
			continue
		}
		var p models.Product
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			misses = append(misses, ids[i])
			continue
		}
		products = append(products, p)
	}

	if len(misses) == 0 {
		return products, nil
	}

	fetched, err := c.next.FindByIDs(ctx, misses)
	if err != nil {
		return nil, err
	}
	c.store(ctx, fetched)
	return append(products, fetched...), nil
}

func (c *CachedProductRepository) store(ctx context.Context, products []models.Product) {
	if len(products) == 0 {
		return
	}
	pipe := c.redis.Pipeline()
	for _, p := range products {
		b, err := json.Marshal(p)
		if err != nil {
			continue
		}
		pipe.Set(ctx, productCachePrefix+p.ID, b, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("catalog cache write failed", zap.Error(err))
	}
}
