package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-strm/core"
	"github.com/goliatone/go-strm/ratelimit"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// rateLimitStateColumns are rewritten on conflict. id and created_at keep the
// values of the first insert.
var rateLimitStateColumns = []string{
	"budget_limit",
	"budget_remaining",
	"reset_at",
	"retry_after_ms",
	"throttled_until",
	"last_status",
	"attempts",
	"metadata",
	"updated_at",
}

// RateLimitStateStore keeps delivery throttle state across processes sharing
// one database.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*rateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, "rate-limit state", func() *rateLimitStateRecord {
		return &rateLimitStateRecord{}
	})
	if err != nil {
		return nil, err
	}
	return &RateLimitStateStore{db: db, repo: repo}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.repo == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key = normalizeRateLimitKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return ratelimit.State{}, err
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("endpoint", "=", key.Endpoint),
		repository.SelectBy("bucket_key", "=", key.BucketKey),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return ratelimit.State{}, err
	}
	if len(records) == 0 {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return records[0].toState(), nil
}

// Upsert writes state in a single statement keyed on (endpoint, bucket_key).
func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	state.Key = normalizeRateLimitKey(state.Key)
	if err := validateRateLimitKey(state.Key); err != nil {
		return err
	}
	record := newRateLimitStateRecord(state)

	query := s.db.NewInsert().
		Model(record).
		On("CONFLICT (endpoint, bucket_key) DO UPDATE")
	for _, column := range rateLimitStateColumns {
		query = query.Set(column + " = EXCLUDED." + column)
	}
	_, err := query.Exec(ctx)
	return err
}

func newRateLimitStateRecord(state ratelimit.State) *rateLimitStateRecord {
	updatedAt := state.UpdatedAt.UTC()
	if state.UpdatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	record := &rateLimitStateRecord{
		ID:              uuid.NewString(),
		Endpoint:        state.Key.Endpoint,
		BucketKey:       state.Key.BucketKey,
		BudgetLimit:     state.Limit,
		BudgetRemaining: state.Remaining,
		ResetAt:         copyTimePointer(state.ResetAt),
		ThrottledUntil:  copyTimePointer(state.ThrottledUntil),
		LastStatus:      state.LastStatus,
		Attempts:        max(state.Attempts, 0),
		Metadata:        copyAnyMap(state.Metadata),
		CreatedAt:       updatedAt,
		UpdatedAt:       updatedAt,
	}
	if state.RetryAfter != nil && *state.RetryAfter > 0 {
		ms := state.RetryAfter.Milliseconds()
		record.RetryAfterMS = &ms
	}
	return record
}

func (r *rateLimitStateRecord) toState() ratelimit.State {
	if r == nil {
		return ratelimit.State{}
	}
	state := ratelimit.State{
		Key:            core.RateLimitKey{Endpoint: r.Endpoint, BucketKey: r.BucketKey},
		Limit:          r.BudgetLimit,
		Remaining:      r.BudgetRemaining,
		ResetAt:        copyTimePointer(r.ResetAt),
		ThrottledUntil: copyTimePointer(r.ThrottledUntil),
		LastStatus:     r.LastStatus,
		Attempts:       r.Attempts,
		Metadata:       copyAnyMap(r.Metadata),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.RetryAfterMS != nil && *r.RetryAfterMS > 0 {
		retryAfter := time.Duration(*r.RetryAfterMS) * time.Millisecond
		state.RetryAfter = &retryAfter
	}
	return state
}

func normalizeRateLimitKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		Endpoint:  strings.TrimRight(strings.TrimSpace(strings.ToLower(key.Endpoint)), "/"),
		BucketKey: strings.TrimSpace(strings.ToLower(key.BucketKey)),
	}
}

func validateRateLimitKey(key core.RateLimitKey) error {
	switch {
	case key.Endpoint == "":
		return fmt.Errorf("sqlstore: rate-limit endpoint is required")
	case key.BucketKey == "":
		return fmt.Errorf("sqlstore: rate-limit bucket key is required")
	}
	return nil
}

func copyAnyMap(input map[string]any) map[string]any {
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
