package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-strm/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is the throttle view of one delivery endpoint bucket as of the last
// response it produced.
type State struct {
	Key            core.RateLimitKey
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
	Metadata       map[string]any
}

// Wait reports how long delivery must hold off at now. Zero means open.
func (s State) Wait(now time.Time) time.Duration {
	if s.ThrottledUntil != nil && now.Before(*s.ThrottledUntil) {
		return s.ThrottledUntil.Sub(now)
	}
	return 0
}

type StateStore interface {
	Get(ctx context.Context, key core.RateLimitKey) (State, error)
	Upsert(ctx context.Context, state State) error
}

// MemoryStateStore keeps state for the lifetime of the process.
type MemoryStateStore struct {
	mu    sync.RWMutex
	items map[string]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key core.RateLimitKey) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	state, ok := s.items[stateKey(normalizeKey(key))]
	s.mu.RUnlock()
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = cloneMap(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = normalizeKey(state.Key)
	state.Metadata = cloneMap(state.Metadata)
	s.mu.Lock()
	s.items[stateKey(state.Key)] = state
	s.mu.Unlock()
	return nil
}

// normalizeKey makes "https://Events.example/event/" and
// "https://events.example/event" share a bucket.
func normalizeKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		Endpoint:  strings.TrimRight(strings.ToLower(strings.TrimSpace(key.Endpoint)), "/"),
		BucketKey: strings.ToLower(strings.TrimSpace(key.BucketKey)),
	}
}

func stateKey(key core.RateLimitKey) string {
	return key.Endpoint + "|" + key.BucketKey
}

func cloneMap(input map[string]any) map[string]any {
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
