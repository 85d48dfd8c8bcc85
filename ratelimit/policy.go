package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-strm/core"
)

// ThrottledError is returned by BeforeCall while the delivery endpoint has
// asked callers to hold off.
type ThrottledError struct {
	Endpoint   string
	BucketKey  string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: endpoint %q bucket %q throttled for %s", e.Endpoint, e.BucketKey, e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{
		"endpoint":   e.Endpoint,
		"bucket_key": e.BucketKey,
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return core.NewRateLimitedError(nil, e.Error(), metadata)
}

// AdaptivePolicy closes a bucket after a 429 or an exhausted X-RateLimit
// budget. The window lasts for Retry-After when given, until the budget reset
// when the budget ran out, and otherwise for an exponential backoff capped at
// MaxBackoff.
type AdaptivePolicy struct {
	Store          StateStore
	Now            func() time.Time
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:          store,
		Now:            func() time.Time { return time.Now().UTC() },
		InitialBackoff: time.Second,
		MaxBackoff:     time.Minute,
	}
}

func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	state, found, err := p.load(ctx, key)
	if err != nil || !found {
		return err
	}
	if wait := state.Wait(p.now()); wait > 0 {
		return ThrottledError{Endpoint: state.Key.Endpoint, BucketKey: state.Key.BucketKey, RetryAfter: wait}
	}
	return nil
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ResponseMeta) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, _, err := p.load(ctx, key)
	if err != nil {
		return err
	}
	now := p.now()
	b := readBudget(res, now)

	state.Key = normalizeKey(key)
	state.LastStatus = res.StatusCode
	state.UpdatedAt = now
	state.RetryAfter = b.retryAfter
	state.Metadata = cloneMap(state.Metadata)
	for k, v := range res.Metadata {
		state.Metadata[k] = v
	}
	if b.limit != nil {
		state.Limit = *b.limit
	}
	if b.remaining != nil {
		state.Remaining = *b.remaining
	}
	if b.resetAt != nil {
		state.ResetAt = b.resetAt
	}

	if !b.throttles(res.StatusCode) {
		state.Attempts = 0
		state.ThrottledUntil = nil
		return p.Store.Upsert(ctx, state)
	}

	state.Attempts++
	until := now.Add(p.window(b, state.Attempts, now))
	state.ThrottledUntil = &until
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) load(ctx context.Context, key core.RateLimitKey) (State, bool, error) {
	if p == nil || p.Store == nil {
		return State{}, false, nil
	}
	state, err := p.Store.Get(ctx, normalizeKey(key))
	switch {
	case errors.Is(err, ErrStateNotFound):
		return State{}, false, nil
	case err != nil:
		return State{}, false, err
	}
	return state, true, nil
}

func (p *AdaptivePolicy) window(b budget, attempts int, now time.Time) time.Duration {
	if b.retryAfter != nil {
		return *b.retryAfter
	}
	if b.exhausted() && b.resetAt != nil && b.resetAt.After(now) {
		return b.resetAt.Sub(now)
	}
	return p.backoff(attempts)
}

func (p *AdaptivePolicy) backoff(attempts int) time.Duration {
	delay := p.InitialBackoff
	if delay <= 0 {
		delay = time.Second
	}
	ceiling := p.MaxBackoff
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	for i := 1; i < attempts && delay < ceiling; i++ {
		delay *= 2
	}
	return min(delay, ceiling)
}

func (p *AdaptivePolicy) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

var _ core.RateLimitPolicy = (*AdaptivePolicy)(nil)
