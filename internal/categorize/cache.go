package categorize

import (
	"context"
	"sync"
	"time"

	"github.com/spendsense/backend/internal/model"
)

// RuleCache wraps a RuleSource with a per-bank TTL cache. Owned by the
// engine's constructor site, not a package singleton, so rule-table changes
// mid-batch are an explicit Invalidate call and tests never share state.
type RuleCache struct {
	src RuleSource
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[model.BankCode]cacheEntry
}

type cacheEntry struct {
	rules   []model.Rule
	fetched time.Time
}

// NewRuleCache wraps src with a TTL cache. A non-positive ttl disables
// expiry; entries then live until Invalidate.
func NewRuleCache(src RuleSource, ttl time.Duration) *RuleCache {
	return &RuleCache{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[model.BankCode]cacheEntry),
	}
}

// ActiveRules serves from cache when fresh, otherwise falls through to the
// source. A source error is returned without caching.
func (c *RuleCache) ActiveRules(ctx context.Context, bank model.BankCode) ([]model.Rule, error) {
	c.mu.Lock()
	if e, ok := c.entries[bank]; ok {
		if c.ttl <= 0 || c.now().Sub(e.fetched) < c.ttl {
			rules := e.rules
			c.mu.Unlock()
			return rules, nil
		}
	}
	c.mu.Unlock()

	rules, err := c.src.ActiveRules(ctx, bank)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[bank] = cacheEntry{rules: rules, fetched: c.now()}
	c.mu.Unlock()
	return rules, nil
}

// Invalidate drops every cached entry. Called after rule-table writes.
func (c *RuleCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[model.BankCode]cacheEntry)
	c.mu.Unlock()
}
