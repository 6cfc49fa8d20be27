// tenant_cache.go — LRU-кэш поиска арендатора по учреждению с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/identity-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	tenantCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_tenant_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш арендаторов.",
	})
	tenantCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_tenant_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша арендаторов.",
	})
)

// TenantCache кэширует результаты TenantLookup.
// Кэшируются только найденные арендаторы: новое учреждение
// начинает участвовать в провижининге сразу после регистрации.
type TenantCache struct {
	lookup TenantLookup
	cache  *expirable.LRU[string, model.Customer]
}

// NewTenantCache создаёт кэш с указанным размером и TTL.
func NewTenantCache(lookup TenantLookup, maxSize int, ttl time.Duration) *TenantCache {
	return &TenantCache{
		lookup: lookup,
		cache:  expirable.NewLRU[string, model.Customer](maxSize, nil, ttl),
	}
}

// GetTenantByInstitutionExternalID возвращает арендатора из кэша
// или из нижележащего TenantLookup.
func (c *TenantCache) GetTenantByInstitutionExternalID(ctx context.Context, institutionID string) (*model.Customer, error) {
	if cached, ok := c.cache.Get(institutionID); ok {
		tenantCacheHitsTotal.Inc()
		return &cached, nil
	}
	tenantCacheMissesTotal.Inc()

	tenant, err := c.lookup.GetTenantByInstitutionExternalID(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(institutionID, *tenant)
	return tenant, nil
}

// Invalidate удаляет запись учреждения из кэша.
func (c *TenantCache) Invalidate(institutionID string) {
	c.cache.Remove(institutionID)
}

// Len возвращает количество записей в кэше.
func (c *TenantCache) Len() int {
	return c.cache.Len()
}
