package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"contentflow-api/domain"
)

type backend interface {
	List(ctx context.Context, userID string) ([]domain.ContentItem, error)
	Insert(ctx context.Context, userID string, draft domain.ItemDraft) (domain.ContentItem, error)
	Update(ctx context.Context, userID, id string, patch domain.ItemPatch) (domain.ContentItem, error)
	Delete(ctx context.Context, userID, id string) error
}

// Cache wraps a Storage instance with Redis-backed caching of the per-user
// item listing. Every write evicts the user's cache entry so the next List
// observes server truth.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) List(ctx context.Context, userID string) ([]domain.ContentItem, error) {
	if items, ok := c.loadFromCache(ctx, userID); ok {
		return items, nil
	}

	items, err := c.base.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, userID, items)
	return items, nil
}

func (c *Cache) Insert(ctx context.Context, userID string, draft domain.ItemDraft) (domain.ContentItem, error) {
	item, err := c.base.Insert(ctx, userID, draft)
	if err != nil {
		return domain.ContentItem{}, err
	}
	c.evict(ctx, userID)
	return item, nil
}

func (c *Cache) Update(ctx context.Context, userID, id string, patch domain.ItemPatch) (domain.ContentItem, error) {
	item, err := c.base.Update(ctx, userID, id, patch)
	if err != nil {
		return domain.ContentItem{}, err
	}
	c.evict(ctx, userID)
	return item, nil
}

func (c *Cache) Delete(ctx context.Context, userID, id string) error {
	if err := c.base.Delete(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) loadFromCache(ctx context.Context, userID string) ([]domain.ContentItem, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, contentCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, contentCacheKey(userID)).Err()
		}
		return nil, false
	}
	var items []domain.ContentItem
	if err := json.Unmarshal(data, &items); err != nil {
		_ = c.redis.Del(ctx, contentCacheKey(userID)).Err()
		return nil, false
	}
	return items, true
}

func (c *Cache) store(ctx context.Context, userID string, items []domain.ContentItem) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, contentCacheKey(userID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, contentCacheKey(userID)).Result()
}

func contentCacheKey(userID string) string {
	return "content:" + userID
}
