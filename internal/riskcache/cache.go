// Package riskcache implements the Risk Cache: a
// keyed (chain_id, token_address, category) lookup with per-category TTLs,
// single-writer-per-key in-flight coalescing, and size-bounded eviction so a
// burst of identical lookups for a hot token only computes once.
package riskcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/dexsentinel/engine/internal/domain"
)

// categoryTTLs fixes each category's staleness window slow
// moving facts (honeypot classification, contract bytecode) cache far longer
// than fast-moving ones (liquidity depth, technical indicators).
var categoryTTLs = map[domain.RiskCategory]time.Duration{
	domain.CategoryHoneypot: 24 * time.Hour,
	domain.CategoryContractSecurity: 24 * time.Hour,
	domain.CategoryTax: 45 * time.Minute,
	domain.CategoryHolder: 30 * time.Minute,
	domain.CategoryLiquidity: 15 * time.Minute,
	domain.CategoryMarket: 10 * time.Minute,
	domain.CategoryTechnical: 5 * time.Minute,
	domain.CategorySocial: 30 * time.Minute,
}

// maxEntriesPerCategory bounds memory independent of go-cache's own TTL
// janitor, evicting the least-recently-set entry once a category's working
// set grows past this size.
const maxEntriesPerCategory = 100

// TTLFor returns the configured freshness window for a category, defaulting
// to the Market category's window for anything unrecognized.
func TTLFor(category domain.RiskCategory) time.Duration {
	if d, ok := categoryTTLs[category]; ok {
		return d
	}
	return categoryTTLs[domain.CategoryMarket]
}

// Compute produces a fresh score for a cache miss. Implementations are the
// category analyzers in internal/risk.
type Compute func(ctx context.Context) (domain.RiskCategoryScore, error)

// Cache is safe for concurrent use.
type Cache struct {
	store *gocache.Cache
	group singleflight.Group

	mu sync.Mutex
	ll map[domain.RiskCategory]*list.List
	indexes map[domain.RiskCategory]map[string]*list.Element
}

// New builds an empty Cache. go-cache's own janitor runs every cleanupEvery
// and purges TTL-expired entries independent of our own size-based eviction.
func New(cleanupEvery time.Duration) *Cache {
	return &Cache{
		store: gocache.New(gocache.NoExpiration, cleanupEvery),
		ll: make(map[domain.RiskCategory]*list.List),
		indexes: make(map[domain.RiskCategory]map[string]*list.Element),
	}
}

func cacheKey(chainID int64, token string, category domain.RiskCategory) string {
	return fmt.Sprintf("%d:%s:%s", chainID, token, category)
}

// Get returns a cached, still-fresh score without triggering a compute.
func (c *Cache) Get(chainID int64, token string, category domain.RiskCategory) (domain.RiskCategoryScore, bool) {
	v, ok := c.store.Get(cacheKey(chainID, token, category))
	if !ok {
		return domain.RiskCategoryScore{}, false
	}
	return v.(domain.RiskCategoryScore), true
}

// GetOrCompute returns the cached score if fresh, otherwise calls compute
// exactly once across all concurrent callers for the same key
// (singleflight), caches the result for that category's TTL, and returns it.
func (c *Cache) GetOrCompute(ctx context.Context, chainID int64, token string, category domain.RiskCategory, compute Compute) (domain.RiskCategoryScore, error) {
	key := cacheKey(chainID, token, category)
	if score, ok := c.Get(chainID, token, category); ok {
		return score, nil
	}

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
			// Re-check: another goroutine may have populated the cache while we
			// waited to enter the singleflight critical section.
			if score, ok := c.Get(chainID, token, category); ok {
				return score, nil
			}
			score, err := compute(ctx)
			if err != nil {
				return domain.RiskCategoryScore{}, err
			}
			c.set(chainID, token, category, score)
			return score, nil
		})
	if err != nil {
		return domain.RiskCategoryScore{}, err
	}
	return result.(domain.RiskCategoryScore), nil
}

func (c *Cache) set(chainID int64, token string, category domain.RiskCategory, score domain.RiskCategoryScore) {
	key := cacheKey(chainID, token, category)
	c.store.Set(key, score, TTLFor(category))
	c.touch(category, key)
}

// touch records key as most-recently-set for category, evicting the oldest
// entry once the category exceeds maxEntriesPerCategory.
func (c *Cache) touch(category domain.RiskCategory, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ll, ok := c.ll[category]
	if !ok {
		ll = list.New()
		c.ll[category] = ll
		c.indexes[category] = make(map[string]*list.Element)
	}
	index := c.indexes[category]

	if el, ok := index[key]; ok {
		ll.MoveToFront(el)
		return
	}
	el := ll.PushFront(key)
	index[key] = el

	if ll.Len() > maxEntriesPerCategory {
		oldest := ll.Back()
		if oldest != nil {
			ll.Remove(oldest)
			evictedKey := oldest.Value.(string)
			delete(index, evictedKey)
			c.store.Delete(evictedKey)
		}
	}
}

// Invalidate drops every cached category for a token, used when a
// RiskAssessment's consumer reports the token's on-chain state changed
// materially (e.g. ownership renounced, liquidity pulled).
func (c *Cache) Invalidate(chainID int64, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for category, index := range c.indexes {
		key := cacheKey(chainID, token, category)
		if el, ok := index[key]; ok {
			c.ll[category].Remove(el)
			delete(index, key)
		}
		c.store.Delete(key)
	}
}
