package oauth

import (
	"sync"
	"time"

	"github.com/eamarucci/bot-answer/internal/providers"
)

// SafetyMargin is how long before expiry a cached access token stops being served.
const SafetyMargin = 5 * time.Minute

// CachedToken is an access token held in memory only.
type CachedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

type cacheKey struct {
	principal uint64
	provider  providers.ID
}

// TokenCache holds access tokens per (principal, provider). It is not a source
// of truth: the stored refresh token is, and entries simply age out.
type TokenCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]CachedToken
	now     func() time.Time
}

// NewTokenCache creates an empty cache. now may be nil.
func NewTokenCache(now func() time.Time) *TokenCache {
	if now == nil {
		now = time.Now
	}
	return &TokenCache{entries: make(map[cacheKey]CachedToken), now: now}
}

// Get returns the token only while now+SafetyMargin is before its expiry.
func (c *TokenCache) Get(principal uint64, provider providers.ID) (CachedToken, bool) {
	c.mu.RLock()
	tok, ok := c.entries[cacheKey{principal: principal, provider: provider}]
	c.mu.RUnlock()
	if !ok || !c.now().Add(SafetyMargin).Before(tok.ExpiresAt) {
		return CachedToken{}, false
	}
	return tok, true
}

// Put stores or replaces an entry.
func (c *TokenCache) Put(principal uint64, provider providers.ID, tok CachedToken) {
	c.mu.Lock()
	c.entries[cacheKey{principal: principal, provider: provider}] = tok
	c.mu.Unlock()
}

// Invalidate drops the listed providers for a principal, or all of them when none are given.
func (c *TokenCache) Invalidate(principal uint64, provs ...providers.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(provs) == 0 {
		for key := range c.entries {
			if key.principal == principal {
				delete(c.entries, key)
			}
		}
		return
	}
	for _, p := range provs {
		delete(c.entries, cacheKey{principal: principal, provider: p})
	}
}

// Len reports the number of entries, usable or not.
func (c *TokenCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
