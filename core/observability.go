package core

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"
)

// Statuses tagged on every operation metric and log line.
const (
	StatusSuccess  = "success"
	StatusRejected = "rejected"
	StatusFailure  = "failure"
)

// operationStatus maps a finished call to its reported status. A call that
// returned no error but carries a non-2xx status_code field, such as a final
// 401 outcome, is rejected rather than successful.
func operationStatus(err error, fields map[string]any) string {
	if err != nil {
		return StatusFailure
	}
	if code, ok := fields["status_code"].(int); ok && (code < 200 || code > 299) {
		return StatusRejected
	}
	return StatusSuccess
}

func (c *Client) observeOperation(ctx context.Context, startedAt time.Time, operation string, err error, fields map[string]any) {
	if c == nil {
		return
	}
	if operation = normalizeOperation(operation); operation == "" {
		operation = "unknown"
	}
	elapsed := time.Since(startedAt).Milliseconds()
	status := operationStatus(err, fields)

	entry := cloneFields(fields)
	entry["event_type"] = operation
	entry["status"] = status
	entry["client"] = c.config.ClientName
	entry["duration_ms"] = elapsed
	if err != nil {
		entry["error"] = err.Error()
	}

	if c.metricsRecorder != nil {
		tags := metricTags(operation, status, entry)
		c.metricsRecorder.IncCounter(ctx, CounterName(operation), 1, cloneTags(tags))
		c.metricsRecorder.ObserveHistogram(ctx, DurationName(operation), float64(elapsed), tags)
	}

	switch status {
	case StatusFailure:
		c.log(ctx, "error", operation+" failed", entry)
	case StatusRejected:
		c.log(ctx, "warn", operation+" rejected", entry)
	default:
		c.log(ctx, "info", operation+" succeeded", entry)
	}
}

func (c *Client) log(ctx context.Context, level string, message string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logger := c.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if withFields, ok := logger.(FieldsLogger); ok {
		logger = withFields.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+5)
	maps.Copy(out, fields)
	return out
}

// flattenFields renders fields as sorted key/value pairs for loggers without
// structured field support.
func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
}
