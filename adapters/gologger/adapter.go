package gologger

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-strm/core"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// AttemptLogger writes every delivery attempt to a glog logger. Attempts that
// carry an error or a non-2xx status are logged at warn level.
type AttemptLogger struct {
	logger glog.Logger
}

func NewAttemptLogger(name string, provider glog.LoggerProvider, logger glog.Logger) *AttemptLogger {
	_, resolved := Resolve(name, provider, logger)
	return &AttemptLogger{logger: glog.Ensure(resolved)}
}

func (l *AttemptLogger) RecordAttempt(ctx context.Context, attempt core.DeliveryAttempt) error {
	if l == nil || l.logger == nil {
		return nil
	}
	logger := l.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"delivery_id", attempt.DeliveryID,
		"schema_ref", attempt.SchemaRef,
		"attempt", attempt.Attempt,
		"status_code", attempt.StatusCode,
		"refreshed", attempt.Refreshed,
		"duration_ms", attempt.DurationMS,
	}
	if attempt.Error != "" {
		logger.Warn("strm delivery attempt failed", append(args, "error", attempt.Error)...)
		return nil
	}
	if attempt.StatusCode < 200 || attempt.StatusCode >= 300 {
		logger.Warn("strm delivery attempt rejected", args...)
		return nil
	}
	logger.Info("strm delivery attempt", args...)
	return nil
}

var _ core.DeliveryRecorder = (*AttemptLogger)(nil)
