package sqlstore

import (
	"github.com/goliatone/go-strm/core"
	"github.com/goliatone/go-strm/ratelimit"
)

var (
	_ core.DeliveryRecorder      = (*DeliveryAttemptStore)(nil)
	_ core.DeliveryAttemptReader = (*DeliveryAttemptStore)(nil)
	_ ratelimit.StateStore       = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore       = (*CachedRateLimitStateStore)(nil)
)
