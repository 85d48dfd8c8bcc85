package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type deliveryAttemptRecord struct {
	bun.BaseModel `bun:"table:strm_delivery_attempts,alias:sda"`

	ID         string    `bun:"id,pk"`
	DeliveryID string    `bun:"delivery_id,notnull"`
	SchemaRef  string    `bun:"schema_ref,notnull"`
	Attempt    int       `bun:"attempt,notnull"`
	StatusCode int       `bun:"status_code,notnull"`
	Refreshed  bool      `bun:"refreshed,notnull"`
	Error      string    `bun:"error,notnull"`
	DurationMS int64     `bun:"duration_ms,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *deliveryAttemptRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *deliveryAttemptRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:strm_rate_limit_state,alias:srl"`

	ID              string         `bun:"id,pk"`
	Endpoint        string         `bun:"endpoint,notnull"`
	BucketKey       string         `bun:"bucket_key,notnull"`
	BudgetLimit     int            `bun:"budget_limit,notnull"`
	BudgetRemaining int            `bun:"budget_remaining,notnull"`
	ResetAt         *time.Time     `bun:"reset_at"`
	RetryAfterMS    *int64         `bun:"retry_after_ms"`
	ThrottledUntil  *time.Time     `bun:"throttled_until"`
	LastStatus      int            `bun:"last_status,notnull"`
	Attempts        int            `bun:"attempts,notnull"`
	Metadata        map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *rateLimitStateRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *rateLimitStateRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}
