package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-strm/core"
)

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerRetryAfter = "Retry-After"
)

// budget is what one delivery response says about the caller's allowance.
type budget struct {
	limit      *int
	remaining  *int
	resetAt    *time.Time
	retryAfter *time.Duration
}

func readBudget(res core.ResponseMeta, now time.Time) budget {
	var b budget
	b.limit = headerInt(res.Headers, headerLimit)
	b.remaining = headerInt(res.Headers, headerRemaining)
	if seconds := headerInt64(res.Headers, headerReset); seconds != nil && *seconds > 0 {
		resetAt := time.Unix(*seconds, 0).UTC()
		b.resetAt = &resetAt
	}
	if res.RetryAfter != nil && *res.RetryAfter > 0 {
		delay := *res.RetryAfter
		b.retryAfter = &delay
	} else if delay, ok := retryAfterHeader(headerValue(res.Headers, headerRetryAfter), now); ok {
		b.retryAfter = &delay
	}
	return b
}

func (b budget) exhausted() bool {
	return b.remaining != nil && *b.remaining <= 0
}

// throttles reports whether a response with statusCode must close the bucket.
// Server errors never do, whatever the headers say.
func (b budget) throttles(statusCode int) bool {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= http.StatusInternalServerError:
		return false
	default:
		return b.exhausted()
	}
}

// retryAfterHeader accepts delta-seconds or an HTTP date.
func retryAfterHeader(raw string, now time.Time) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, seconds > 0
	}
	retryAt, err := http.ParseTime(raw)
	if err != nil || !retryAt.After(now) {
		return 0, false
	}
	return retryAt.Sub(now), true
}

func headerInt(headers map[string]string, key string) *int {
	value := headerInt64(headers, key)
	if value == nil {
		return nil
	}
	out := int(*value)
	return &out
}

func headerInt64(headers map[string]string, key string) *int64 {
	raw := headerValue(headers, key)
	if raw == "" {
		return nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func headerValue(headers map[string]string, key string) string {
	if value, ok := headers[key]; ok {
		return strings.TrimSpace(value)
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
