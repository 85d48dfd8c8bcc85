package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/goliatone/go-strm/core"
)

var eventsBucket = core.RateLimitKey{Endpoint: "https://events.strmprivacy.io/event", BucketKey: "events"}

// policyClock is a policy over a memory store whose clock the test moves.
type policyClock struct {
	store  *MemoryStateStore
	policy *AdaptivePolicy
	now    time.Time
}

func newPolicyClock() *policyClock {
	pc := &policyClock{
		store: NewMemoryStateStore(),
		now:   time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	pc.policy = NewAdaptivePolicy(pc.store)
	pc.policy.Now = func() time.Time { return pc.now }
	return pc
}

func (pc *policyClock) respond(t *testing.T, status int, headers map[string]string) State {
	t.Helper()
	if err := pc.policy.AfterCall(context.Background(), eventsBucket, core.ResponseMeta{StatusCode: status, Headers: headers}); err != nil {
		t.Fatalf("after call %d: %v", status, err)
	}
	state, err := pc.store.Get(context.Background(), eventsBucket)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return state
}

func TestAdaptivePolicy_UnknownBucketIsOpen(t *testing.T) {
	pc := newPolicyClock()
	if err := pc.policy.BeforeCall(context.Background(), eventsBucket); err != nil {
		t.Fatalf("expected open bucket without state, got %v", err)
	}
}

func TestAdaptivePolicy_RecordsBudgetHeaders(t *testing.T) {
	pc := newPolicyClock()
	reset := pc.now.Add(2 * time.Minute)
	err := pc.policy.AfterCall(context.Background(), eventsBucket, core.ResponseMeta{
		StatusCode: 204,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "600",
			"X-RateLimit-Remaining": "598",
			"X-RateLimit-Reset":     strconv.FormatInt(reset.Unix(), 10),
		},
		Metadata: map[string]any{"schema_ref": "strmprivacy/demo/1.0.2"},
	})
	if err != nil {
		t.Fatalf("after call: %v", err)
	}
	state, err := pc.store.Get(context.Background(), eventsBucket)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Limit != 600 || state.Remaining != 598 || state.LastStatus != 204 {
		t.Fatalf("unexpected budget %+v", state)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(reset) {
		t.Fatalf("expected reset %s, got %v", reset, state.ResetAt)
	}
	if state.ThrottledUntil != nil || state.Metadata["schema_ref"] != "strmprivacy/demo/1.0.2" {
		t.Fatalf("expected open bucket carrying schema_ref, got %+v", state)
	}
}

func TestAdaptivePolicy_ActiveWindowReturnsThrottledError(t *testing.T) {
	pc := newPolicyClock()
	until := pc.now.Add(45 * time.Second)
	if err := pc.store.Upsert(context.Background(), State{Key: eventsBucket, ThrottledUntil: &until}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	var throttled ThrottledError
	if err := pc.policy.BeforeCall(context.Background(), eventsBucket); !errors.As(err, &throttled) {
		t.Fatalf("expected ThrottledError, got %v", err)
	}
	if throttled.RetryAfter != 45*time.Second || throttled.BucketKey != "events" {
		t.Fatalf("unexpected throttle %+v", throttled)
	}
}

func TestAdaptivePolicy_TooManyRequestsHonoursRetryAfter(t *testing.T) {
	pc := newPolicyClock()
	state := pc.respond(t, http.StatusTooManyRequests, map[string]string{"Retry-After": "15"})

	if state.Attempts != 1 || state.LastStatus != http.StatusTooManyRequests {
		t.Fatalf("unexpected state %+v", state)
	}
	if got := state.Wait(pc.now); got != 15*time.Second {
		t.Fatalf("expected 15s window, got %s", got)
	}
	if state.RetryAfter == nil || *state.RetryAfter != 15*time.Second {
		t.Fatalf("expected retry after 15s, got %v", state.RetryAfter)
	}
}

func TestAdaptivePolicy_RepeatedThrottlesDoubleTheWindow(t *testing.T) {
	pc := newPolicyClock()
	pc.policy.InitialBackoff = 5 * time.Second
	pc.policy.MaxBackoff = time.Minute

	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}
	for i, expected := range want {
		state := pc.respond(t, http.StatusTooManyRequests, nil)
		if state.Attempts != i+1 {
			t.Fatalf("throttle %d: expected attempts %d, got %d", i+1, i+1, state.Attempts)
		}
		if got := state.Wait(pc.now); got != expected {
			t.Fatalf("throttle %d: expected %s window, got %s", i+1, expected, got)
		}
		pc.now = pc.now.Add(expected)
	}
}

func TestAdaptivePolicy_AcceptedDeliveryReopensBucket(t *testing.T) {
	pc := newPolicyClock()
	pc.respond(t, http.StatusTooManyRequests, nil)
	pc.respond(t, http.StatusTooManyRequests, nil)

	pc.now = pc.now.Add(time.Minute)
	state := pc.respond(t, http.StatusNoContent, nil)
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("expected accepted delivery to clear the throttle, got %+v", state)
	}
}

func TestAdaptivePolicy_ExhaustedBudgetBlocksUntilReset(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }

	key := core.RateLimitKey{Endpoint: "https://events.strmprivacy.io/event/", BucketKey: "Events"}
	if err := policy.AfterCall(context.Background(), key, core.ResponseMeta{
		StatusCode: 204,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     "1700000030",
		},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}

	err := policy.BeforeCall(context.Background(), core.RateLimitKey{Endpoint: "https://events.strmprivacy.io/event", BucketKey: "events"})
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected normalized key to be throttled, got %v", err)
	}

	now = now.Add(31 * time.Second)
	if err := policy.BeforeCall(context.Background(), key); err != nil {
		t.Fatalf("expected window to be over, got %v", err)
	}
}

func TestAdaptivePolicy_ServerErrorsDoNotThrottle(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	key := core.RateLimitKey{Endpoint: "https://events.strmprivacy.io/event", BucketKey: "events"}
	if err := policy.AfterCall(context.Background(), key, core.ResponseMeta{StatusCode: 503}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	if err := policy.BeforeCall(context.Background(), key); err != nil {
		t.Fatalf("expected 503 to leave delivery open, got %v", err)
	}
}

func TestAdaptivePolicy_RetryAfterAcceptsHTTPDate(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	policy.Now = func() time.Time { return now }

	key := core.RateLimitKey{Endpoint: "https://events.strmprivacy.io/event", BucketKey: "events"}
	if err := policy.AfterCall(context.Background(), key, core.ResponseMeta{
		StatusCode: 429,
		Headers:    map[string]string{"retry-after": now.Add(90 * time.Second).Format(http.TimeFormat)},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if got := state.Wait(now); got != 90*time.Second {
		t.Fatalf("expected 90s window, got %s", got)
	}
}

func TestAdaptivePolicy_ExhaustedBudgetWithoutResetBacksOff(t *testing.T) {
	store := NewMemoryStateStore()
	policy := NewAdaptivePolicy(store)
	policy.InitialBackoff = 3 * time.Second
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }

	key := core.RateLimitKey{Endpoint: "https://events.strmprivacy.io/event", BucketKey: "events"}
	if err := policy.AfterCall(context.Background(), key, core.ResponseMeta{
		StatusCode: 204,
		Headers:    map[string]string{"X-RateLimit-Remaining": "0"},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	state, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if got := state.Wait(now); got != 3*time.Second {
		t.Fatalf("expected initial backoff window, got %s", got)
	}
	if state.Wait(now.Add(4*time.Second)) != 0 {
		t.Fatalf("expected window to close after backoff")
	}
}

func TestAdaptivePolicy_BackoffIsCapped(t *testing.T) {
	policy := &AdaptivePolicy{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second}
	cases := map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 4: 5 * time.Second, 10: 5 * time.Second}
	for attempts, want := range cases {
		if got := policy.backoff(attempts); got != want {
			t.Fatalf("attempts %d: expected %s, got %s", attempts, want, got)
		}
	}
}

func TestAdaptivePolicy_NilIsOpen(t *testing.T) {
	var policy *AdaptivePolicy
	key := core.RateLimitKey{Endpoint: "https://events.strmprivacy.io/event", BucketKey: "events"}
	if err := policy.BeforeCall(context.Background(), key); err != nil {
		t.Fatalf("expected nil policy to allow delivery, got %v", err)
	}
	if err := policy.AfterCall(context.Background(), key, core.ResponseMeta{StatusCode: 429}); err != nil {
		t.Fatalf("expected nil policy to ignore responses, got %v", err)
	}
}
