package core

import (
	"context"
	"fmt"
	"strings"
)

// Operations reported through logs and metrics.
const (
	OperationAuthenticate = "authenticate"
	OperationRefresh      = "refresh"
	OperationSendEvent    = "send_event"
)

// CounterName is the per-call counter for operation, e.g. strm.send_event.total.
func CounterName(operation string) string {
	return "strm." + operation + ".total"
}

// DurationName is the per-call latency histogram for operation.
func DurationName(operation string) string {
	return "strm." + operation + ".duration_ms"
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// metricTags keeps tag cardinality bounded: operation, status, and the schema
// ref and final status code when the call produced them.
func metricTags(operation string, status string, fields map[string]any) map[string]string {
	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"schema_ref", "status_code"} {
		value, ok := fields[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
			tags[key] = text
		}
	}
	return tags
}

func cloneTags(tags map[string]string) map[string]string {
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}

var _ MetricsRecorder = NopMetricsRecorder{}
