package catalog

import (
	"context"
	"fmt"
	"time"

	"courtbook/internal/models"

	gocache "github.com/patrickmn/go-cache"
)

// CachedProvider кэширующая обертка над провайдером справочника.
// Лукапы могут уходить во внешний каталог, поэтому читаем через TTL-кэш.
type CachedProvider struct {
	inner Provider
	cache *gocache.Cache
}

func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (c *CachedProvider) Court(ctx context.Context, id int64) (models.Court, error) {
	key := fmt.Sprintf("court:%d", id)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(models.Court), nil
	}
	court, err := c.inner.Court(ctx, id)
	if err != nil {
		return models.Court{}, err
	}
	c.cache.SetDefault(key, court)
	return court, nil
}

func (c *CachedProvider) Equipment(ctx context.Context, id int64) (models.Equipment, error) {
	key := fmt.Sprintf("equipment:%d", id)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(models.Equipment), nil
	}
	item, err := c.inner.Equipment(ctx, id)
	if err != nil {
		return models.Equipment{}, err
	}
	c.cache.SetDefault(key, item)
	return item, nil
}

func (c *CachedProvider) Coach(ctx context.Context, id int64) (models.Coach, error) {
	key := fmt.Sprintf("coach:%d", id)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(models.Coach), nil
	}
	coach, err := c.inner.Coach(ctx, id)
	if err != nil {
		return models.Coach{}, err
	}
	c.cache.SetDefault(key, coach)
	return coach, nil
}

func (c *CachedProvider) Courts(ctx context.Context) ([]models.Court, error) {
	if cached, ok := c.cache.Get("courts"); ok {
		return cached.([]models.Court), nil
	}
	courts, err := c.inner.Courts(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault("courts", courts)
	return courts, nil
}

func (c *CachedProvider) EquipmentList(ctx context.Context) ([]models.Equipment, error) {
	if cached, ok := c.cache.Get("equipment_list"); ok {
		return cached.([]models.Equipment), nil
	}
	items, err := c.inner.EquipmentList(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault("equipment_list", items)
	return items, nil
}

func (c *CachedProvider) Coaches(ctx context.Context) ([]models.Coach, error) {
	if cached, ok := c.cache.Get("coaches"); ok {
		return cached.([]models.Coach), nil
	}
	coaches, err := c.inner.Coaches(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault("coaches", coaches)
	return coaches, nil
}

func (c *CachedProvider) ActiveRules(ctx context.Context) ([]models.PricingRule, error) {
	if cached, ok := c.cache.Get("active_rules"); ok {
		return cached.([]models.PricingRule), nil
	}
	rules, err := c.inner.ActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault("active_rules", rules)
	return rules, nil
}

// Invalidate сбрасывает кэш целиком.
func (c *CachedProvider) Invalidate() {
	c.cache.Flush()
}
