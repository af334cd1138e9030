package gateway

import (
	"context"
	"sync"
	"time"
)

// TokenSafetyMargin is subtracted from a token's lifetime so we refresh
// before the platform actually rejects it.
const TokenSafetyMargin = 300 * time.Second

// TokenFetchFunc obtains a fresh access token and its lifetime from the
// platform's auth endpoint.
type TokenFetchFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

// TokenCache caches a platform access token (DingTalk and Feishu both use
// short-lived app tokens) and refreshes it when less than the safety margin
// of its lifetime remains. The fetch runs under the cache lock, which also
// serializes concurrent refreshes; a failed fetch leaves the previous token
// and expiry untouched.
type TokenCache struct {
	fetch TokenFetchFunc

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenCache(fetch TokenFetchFunc) *TokenCache {
	return &TokenCache{fetch: fetch}
}

// Token returns the cached token, refreshing it first if it is missing or
// inside the safety margin.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.expiresAt) > TokenSafetyMargin {
		return c.token, nil
	}

	token, expiresIn, err := c.fetch(ctx)
	if err != nil {
		return "", err
	}

	c.token = token
	c.expiresAt = time.Now().Add(expiresIn)
	return c.token, nil
}

// Clear discards the cached token, forcing a refresh on the next Token
// call. Adapters call this on stop and after auth rejections.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
