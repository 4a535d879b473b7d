package lookupclient

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pd_lookup_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш ответов lookup API.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pd_lookup_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша ответов lookup API.",
	})
)

// Lookuper — операция поиска сведений по адресу.
type Lookuper interface {
	Lookup(ctx context.Context, address string) (json.RawMessage, error)
}

// CachedClient — LRU-кэш успешных ответов поверх Lookuper.
// Ошибки не кэшируются: повторное обогащение записи в error
// снова обращается к lookup API.
type CachedClient struct {
	next  Lookuper
	cache *expirable.LRU[string, json.RawMessage]
}

// NewCachedClient оборачивает next кэшем на maxSize записей с временем жизни ttl.
func NewCachedClient(next Lookuper, maxSize int, ttl time.Duration) *CachedClient {
	return &CachedClient{
		next:  next,
		cache: expirable.NewLRU[string, json.RawMessage](maxSize, nil, ttl),
	}
}

// Lookup возвращает ответ из кэша или запрашивает next.
func (c *CachedClient) Lookup(ctx context.Context, address string) (json.RawMessage, error) {
	key := strings.TrimSpace(address)
	if val, ok := c.cache.Get(key); ok {
		cacheHitsTotal.Inc()
		return val, nil
	}
	cacheMissesTotal.Inc()

	val, err := c.next.Lookup(ctx, address)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, val)
	return val, nil
}

// Len возвращает количество записей в кэше.
func (c *CachedClient) Len() int {
	return c.cache.Len()
}
