package price

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL 默认缓存有效期
const DefaultTTL = 10 * time.Minute

type cacheEntry struct {
	price     float64
	fetchedAt time.Time
}

// Cache 按 symbol 缓存价格，有效期内不再访问底层数据源
// 可安全并发使用
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time
	log    zerolog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// CacheOption 缓存选项
type CacheOption func(*Cache)

// WithTTL 设置有效期
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock 设置时钟 (测试用)
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger 设置日志
func WithLogger(log zerolog.Logger) CacheOption {
	return func(c *Cache) {
		c.log = log
	}
}

// NewCache 创建价格缓存
func NewCache(source Source, opts ...CacheOption) *Cache {
	c := &Cache{
		source:  source,
		ttl:     DefaultTTL,
		now:     time.Now,
		log:     zerolog.Nop(),
		entries: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Price 返回缓存中的价格，过期或不存在时访问底层数据源
// asOf 为零值时使用当前时间
func (c *Cache) Price(ctx context.Context, symbol string, asOf time.Time) (float64, error) {
	if asOf.IsZero() {
		asOf = c.now()
	}

	c.mu.Lock()
	e, ok := c.entries[symbol]
	c.mu.Unlock()
	if ok && asOf.Sub(e.fetchedAt) < c.ttl && !asOf.Before(e.fetchedAt) {
		c.log.Debug().Str("symbol", symbol).Float64("price", e.price).Msg("cache hit")
		return e.price, nil
	}

	p, err := c.source.Price(ctx, symbol, asOf)
	if err != nil {
		return 0, err
	}
	if err := Validate(symbol, p); err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.entries[symbol] = cacheEntry{price: p, fetchedAt: asOf}
	c.mu.Unlock()

	c.log.Debug().Str("symbol", symbol).Float64("price", p).Msg("price fetched")
	return p, nil
}

// Len 缓存条目数
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
