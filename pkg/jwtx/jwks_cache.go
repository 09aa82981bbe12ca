package jwtx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultJWKSTTL is how long a fetched key set is trusted before refetching.
const DefaultJWKSTTL = 12 * time.Hour

type jwksEntry struct {
	keys      *KeySet
	fetchedAt time.Time
}

// JWKSCache is the process-wide cache of remote key sets, keyed by URL.
//
// A refresh is check-then-fetch-then-store without holding a lock across the
// fetch, so concurrent misses for the same URL may fetch twice. The last
// writer wins, which is harmless because every writer stores the same keys.
// A failed fetch is returned to the caller; an expired entry is never served
// as a fallback.
type JWKSCache struct {
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]jwksEntry
}

// JWKSCacheOption configures a JWKSCache.
type JWKSCacheOption func(*JWKSCache)

// WithHTTPClient sets the client used for key set fetches.
func WithHTTPClient(c *http.Client) JWKSCacheOption {
	return func(j *JWKSCache) { j.client = c }
}

// WithTTL overrides DefaultJWKSTTL.
func WithTTL(ttl time.Duration) JWKSCacheOption {
	return func(j *JWKSCache) { j.ttl = ttl }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) JWKSCacheOption {
	return func(j *JWKSCache) { j.now = now }
}

func NewJWKSCache(opts ...JWKSCacheOption) *JWKSCache {
	c := &JWKSCache{
		client:  &http.Client{Timeout: 3 * time.Second},
		ttl:     DefaultJWKSTTL,
		now:     time.Now,
		entries: make(map[string]jwksEntry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Keys returns the key set published at url, fetching it when absent or
// older than the TTL.
func (c *JWKSCache) Keys(ctx context.Context, url string) (*KeySet, error) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[url]
	c.mu.RUnlock()
	if ok && now.Sub(entry.fetchedAt) <= c.ttl {
		return entry.keys, nil
	}

	keys, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrKeyFetch, url, err)
	}

	c.mu.Lock()
	c.entries[url] = jwksEntry{keys: keys, fetchedAt: now}
	c.mu.Unlock()

	return keys, nil
}

// Invalidate drops the cached entry for url.
func (c *JWKSCache) Invalidate(url string) {
	c.mu.Lock()
	delete(c.entries, url)
	c.mu.Unlock()
}

func (c *JWKSCache) fetch(ctx context.Context, url string) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	keys := NewKeySet()
	if err := keys.ResetFromJWKS(jwks); err != nil {
		return nil, err
	}
	return keys, nil
}
