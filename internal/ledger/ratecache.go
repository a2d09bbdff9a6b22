package ledger

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
)

// CachingRateProvider memoizes rate lookups per (currency, date) with TTL
// and size-based LRU eviction. The external rate service is the only remote
// call on the aggregation path, and a budget query asks for the same rates
// once per posting.
//
// Negative results (ErrRateUnavailable) are not cached: a rate may become
// available later and the aggregator already degrades gracefully.
type CachingRateProvider struct {
	inner   RateProvider
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type rateEntry struct {
	key       string
	rate      decimal.Decimal
	expiresAt time.Time
}

func NewCachingRateProvider(inner RateProvider, maxSize int, ttl time.Duration) *CachingRateProvider {
	return &CachingRateProvider{
		inner:   inner,
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (c *CachingRateProvider) Rate(ctx context.Context, currency string, asOf core.Date) (decimal.Decimal, error) {
	key := currency + "@" + asOf.String()

	if rate, ok := c.get(key); ok {
		return rate, nil
	}

	rate, err := c.inner.Rate(ctx, currency, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	c.set(key, rate)
	return rate, nil
}

func (c *CachingRateProvider) get(key string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return decimal.Zero, false
	}
	entry := elem.Value.(*rateEntry)
	if time.Now().After(entry.expiresAt) {
		c.lru.Remove(elem)
		delete(c.items, key)
		return decimal.Zero, false
	}
	c.lru.MoveToFront(elem)
	return entry.rate, true
}

func (c *CachingRateProvider) set(key string, rate decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &rateEntry{key: key, rate: rate, expiresAt: time.Now().Add(c.ttl)}
	if elem, exists := c.items[key]; exists {
		elem.Value = entry
		c.lru.MoveToFront(elem)
		return
	}
	c.items[key] = c.lru.PushFront(entry)

	for c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*rateEntry).key)
	}
}

// Len reports the number of cached rates.
func (c *CachingRateProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
