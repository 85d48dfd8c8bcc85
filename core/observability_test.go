package core

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := *l.records
	out := make([]capturedLog, len(items))
	copy(out, items)
	return out
}

type stubLoggerProvider struct {
	logger Logger
}

func (p stubLoggerProvider) GetLogger(string) Logger {
	return p.logger
}

func hasCounter(counters []capturedCounter, name string, status string) bool {
	for _, counter := range counters {
		if counter.name == name && counter.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasHistogram(histograms []capturedHistogram, name string, status string) bool {
	for _, histogram := range histograms {
		if histogram.name == name && histogram.tags["status"] == status {
			return true
		}
	}
	return false
}

func hasLog(records []capturedLog, level string, msg string, eventType string) bool {
	for _, record := range records {
		if record.level != level || record.msg != msg {
			continue
		}
		if eventType == "" || record.fields["event_type"] == eventType {
			return true
		}
	}
	return false
}

func TestClientObservability_SendEventSuccess(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	client, err := newTestClient(&fakeAuthority{}, statusSender(http.StatusNoContent, ""),
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.SendEvent(context.Background(), demoEnvelope()); err != nil {
		t.Fatalf("send event: %v", err)
	}

	if !hasCounter(metrics.counters, "strm.authenticate.total", "success") {
		t.Fatalf("expected strm.authenticate.total success counter")
	}
	if !hasCounter(metrics.counters, "strm.send_event.total", "success") {
		t.Fatalf("expected strm.send_event.total success counter")
	}
	if !hasHistogram(metrics.histograms, "strm.send_event.duration_ms", "success") {
		t.Fatalf("expected strm.send_event.duration_ms histogram")
	}
	if !hasLog(logger.snapshot(), "info", "send_event succeeded", "send_event") {
		t.Fatalf("expected send_event succeeded structured log")
	}

	for _, counter := range metrics.counters {
		if counter.name != "strm.send_event.total" {
			continue
		}
		if counter.tags["schema_ref"] != "strmprivacy/demo/1.0.2" || counter.tags["status_code"] != "204" {
			t.Fatalf("unexpected send_event tags %+v", counter.tags)
		}
	}
}

func TestClientObservability_SendEventFailure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	logger := newCaptureLogger()
	sender := &fakeSender{sendFn: func(context.Context, TokenPair, Envelope) (RawResponse, error) {
		return RawResponse{}, errors.New("connection reset")
	}}
	client, err := newTestClient(&fakeAuthority{}, sender,
		WithMetricsRecorder(metrics),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.SendEvent(context.Background(), demoEnvelope()); err == nil {
		t.Fatalf("expected send error")
	}
	if !hasCounter(metrics.counters, "strm.send_event.total", "failure") {
		t.Fatalf("expected send_event failure counter")
	}
	if !hasLog(logger.snapshot(), "error", "send_event failed", "send_event") {
		t.Fatalf("expected send_event failure log")
	}
}

func TestClientObservability_LogsRefreshCounts(t *testing.T) {
	logger := newCaptureLogger()
	client, err := newTestClient(&fakeAuthority{}, statusSender(http.StatusUnauthorized, ""),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.SendEvent(context.Background(), demoEnvelope()); err != nil {
		t.Fatalf("send event: %v", err)
	}
	for _, record := range logger.snapshot() {
		if record.msg != "send_event rejected" {
			continue
		}
		if record.level != "warn" {
			t.Fatalf("expected final 401 to log at warn, got %s", record.level)
		}
		if record.fields["attempts"] != 3 || record.fields["refreshes"] != 2 {
			t.Fatalf("unexpected delivery fields %+v", record.fields)
		}
		if record.fields["client"] != "strm" {
			t.Fatalf("expected client name field, got %v", record.fields["client"])
		}
		return
	}
	t.Fatalf("expected send_event rejected log")
}

func TestFlattenFieldsIsSorted(t *testing.T) {
	args := flattenFields(map[string]any{"b": 2, "a": 1})
	if len(args) != 4 || args[0] != "a" || args[2] != "b" {
		t.Fatalf("unexpected flattened fields %v", args)
	}
	if normalizeOperation(" Send-Event ") != "send_event" {
		t.Fatalf("unexpected normalized operation")
	}
}

func TestMetricTags_OnlyCarriesBoundedKeys(t *testing.T) {
	tags := metricTags(OperationSendEvent, "failure", map[string]any{
		"schema_ref":  "strmprivacy/demo/1.0.2",
		"delivery_id": "d1",
		"status_code": nil,
	})
	if len(tags) != 3 {
		t.Fatalf("expected operation, status and schema_ref tags, got %#v", tags)
	}
	if tags["schema_ref"] != "strmprivacy/demo/1.0.2" || tags["operation"] != OperationSendEvent {
		t.Fatalf("unexpected tags %#v", tags)
	}
	if CounterName(OperationRefresh) != "strm.refresh.total" || DurationName(OperationRefresh) != "strm.refresh.duration_ms" {
		t.Fatalf("unexpected metric names")
	}
}

func TestOperationStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		fields map[string]any
		want   string
	}{
		{name: "no status code", want: StatusSuccess},
		{name: "accepted", fields: map[string]any{"status_code": 204}, want: StatusSuccess},
		{name: "final unauthorized", fields: map[string]any{"status_code": 401}, want: StatusRejected},
		{name: "error wins", err: errors.New("boom"), fields: map[string]any{"status_code": 204}, want: StatusFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := operationStatus(tc.err, tc.fields); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
