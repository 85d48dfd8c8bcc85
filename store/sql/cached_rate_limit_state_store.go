package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-strm/core"
	"github.com/goliatone/go-strm/ratelimit"
)

const rateLimitStateCacheKeyPrefix = "go-strm::ratelimit_state::v1"

// CachedRateLimitStateStore answers reads from cache. Writes go to the base
// store and then drop the cached entry, so a reader sees the new state on its
// next miss.
type CachedRateLimitStateStore struct {
	base  ratelimit.StateStore
	cache repositorycache.CacheService
}

func NewCachedRateLimitStateStore(base ratelimit.StateStore, cache repositorycache.CacheService) (*CachedRateLimitStateStore, error) {
	switch {
	case base == nil:
		return nil, fmt.Errorf("sqlstore: base rate-limit state store is required")
	case cache == nil:
		return nil, fmt.Errorf("sqlstore: rate-limit cache service is required")
	}
	return &CachedRateLimitStateStore{base: base, cache: cache}, nil
}

// NewDefaultRateLimitCache builds an in-process cache whose entries live for
// ttl. A non-positive ttl keeps the library default.
func NewDefaultRateLimitCache(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

// RateLimitStateCacheKey is go-strm::ratelimit_state::v1::<endpoint>::<bucket>,
// built from the normalized key with both segments path escaped.
func RateLimitStateCacheKey(key core.RateLimitKey) (string, error) {
	key = normalizeRateLimitKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return "", err
	}
	return rateLimitStateCacheKeyPrefix +
		"::" + url.PathEscape(key.Endpoint) +
		"::" + url.PathEscape(key.BucketKey), nil
}

func (s *CachedRateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if err := s.ready(); err != nil {
		return ratelimit.State{}, err
	}
	key = normalizeRateLimitKey(key)
	cacheKey, err := RateLimitStateCacheKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}
	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (ratelimit.State, error) {
		return s.base.Get(ctx, key)
	})
	if err != nil {
		return ratelimit.State{}, err
	}
	// cached values are shared between readers
	return cloneRateLimitState(state), nil
}

func (s *CachedRateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if err := s.ready(); err != nil {
		return err
	}
	state = cloneRateLimitState(state)
	if err := validateRateLimitKey(state.Key); err != nil {
		return err
	}
	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.Invalidate(ctx, state.Key)
}

// Invalidate drops the cached entry for key.
func (s *CachedRateLimitStateStore) Invalidate(ctx context.Context, key core.RateLimitKey) error {
	if err := s.ready(); err != nil {
		return err
	}
	cacheKey, err := RateLimitStateCacheKey(key)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func (s *CachedRateLimitStateStore) ready() error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached rate-limit state store is not configured")
	}
	return nil
}

func cloneRateLimitState(state ratelimit.State) ratelimit.State {
	out := state
	out.Key = normalizeRateLimitKey(state.Key)
	out.Metadata = copyAnyMap(state.Metadata)
	out.ResetAt = copyTimePointer(state.ResetAt)
	out.ThrottledUntil = copyTimePointer(state.ThrottledUntil)
	if state.RetryAfter != nil {
		retryAfter := *state.RetryAfter
		out.RetryAfter = &retryAfter
	}
	return out
}
