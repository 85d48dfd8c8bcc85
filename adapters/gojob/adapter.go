package gojob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-strm/adapters/gologger"
)

const (
	JobIDPruneAttempts    = "strm.delivery_attempts.prune"
	ParamRetentionSeconds = "retention_seconds"
	DefaultRetention      = 30 * 24 * time.Hour
)

// AttemptPruner deletes delivery attempts created before cutoff.
type AttemptPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       time.Minute,
		MaxDelay:        time.Hour,
		DeadLetterOnMax: true,
	}
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// Backoff doubles BaseDelay per attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// NewPruneMessage builds the queue message asking a worker to drop attempts
// older than retention.
func NewPruneMessage(retention time.Duration) *job.ExecutionMessage {
	if retention <= 0 {
		retention = DefaultRetention
	}
	seconds := int64(retention / time.Second)
	return &job.ExecutionMessage{
		JobID:          JobIDPruneAttempts,
		ScriptPath:     JobIDPruneAttempts,
		Parameters:     map[string]any{ParamRetentionSeconds: seconds},
		IdempotencyKey: JobIDPruneAttempts + ":" + strconv.FormatInt(seconds, 10),
	}
}

func SchedulePrune(ctx context.Context, enqueuer queue.Enqueuer, retention time.Duration) error {
	if enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	return enqueuer.Enqueue(ctx, NewPruneMessage(retention))
}

// PruneWorker consumes prune messages one at a time.
type PruneWorker struct {
	dequeuer queue.Dequeuer
	pruner   AttemptPruner
	policy   RetryPolicy
	hook     worker.Hook
	now      func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

type WorkerOption func(*PruneWorker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *PruneWorker) {
		w.policy = policy
	}
}

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *PruneWorker) {
		if hook != nil {
			w.hook = hook
		}
	}
}

func WithClock(now func() time.Time) WorkerOption {
	return func(w *PruneWorker) {
		if now != nil {
			w.now = now
		}
	}
}

func NewPruneWorker(dequeuer queue.Dequeuer, pruner AttemptPruner, opts ...WorkerOption) (*PruneWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if pruner == nil {
		return nil, fmt.Errorf("gojob: attempt pruner is required")
	}
	w := &PruneWorker{
		dequeuer: dequeuer,
		pruner:   pruner,
		policy:   DefaultRetryPolicy(),
		hook:     NewLoggingHook(nil),
		now:      func() time.Time { return time.Now().UTC() },
		attempts: map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w, nil
}

// ProcessNext handles one queued message and returns the number of pruned
// attempts. Malformed messages are dead-lettered; prune failures are requeued
// under the retry policy.
func (w *PruneWorker) ProcessNext(ctx context.Context) (int, error) {
	if w == nil {
		return 0, fmt.Errorf("gojob: prune worker is nil")
	}
	delivery, err := w.dequeuer.Dequeue(ctx)
	if err != nil {
		return 0, err
	}
	if delivery == nil {
		return 0, nil
	}
	msg := delivery.Message()
	key := messageKey(msg)
	event := worker.Event{
		Message:   msg,
		Delivery:  delivery,
		Attempt:   w.nextAttempt(key),
		StartedAt: w.now(),
	}
	w.hook.OnStart(ctx, event)

	retention, err := retentionFromMessage(msg)
	if err != nil {
		w.forget(key)
		event.Err = err
		event.Duration = w.now().Sub(event.StartedAt)
		w.hook.OnFailure(ctx, event)
		opts := w.policy.NormalizeAttempt(queue.NackOptions{DeadLetter: true, Reason: err.Error()}, event.Attempt)
		return 0, errors.Join(err, delivery.Nack(ctx, opts))
	}

	pruned, err := w.pruner.Prune(ctx, event.StartedAt.Add(-retention))
	event.Duration = w.now().Sub(event.StartedAt)
	if err != nil {
		opts := w.policy.NormalizeAttempt(queue.NackOptions{
			Requeue: true,
			Delay:   w.policy.Backoff(event.Attempt),
			Reason:  err.Error(),
		}, event.Attempt)
		event.Err = err
		event.Delay = opts.Delay
		if opts.Requeue {
			w.hook.OnRetry(ctx, event)
		} else {
			w.forget(key)
			w.hook.OnFailure(ctx, event)
		}
		return 0, errors.Join(err, delivery.Nack(ctx, opts))
	}

	w.forget(key)
	if err := delivery.Ack(ctx); err != nil {
		return pruned, err
	}
	w.hook.OnSuccess(ctx, event)
	return pruned, nil
}

func (w *PruneWorker) nextAttempt(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[key]++
	return w.attempts[key]
}

func (w *PruneWorker) forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, key)
}

func messageKey(msg *job.ExecutionMessage) string {
	if msg == nil {
		return ""
	}
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(msg.JobID)
}

func retentionFromMessage(msg *job.ExecutionMessage) (time.Duration, error) {
	if msg == nil {
		return 0, fmt.Errorf("gojob: execution message is required")
	}
	if strings.TrimSpace(msg.JobID) != JobIDPruneAttempts {
		return 0, fmt.Errorf("gojob: unsupported job %q", msg.JobID)
	}
	raw, ok := msg.Parameters[ParamRetentionSeconds]
	if !ok {
		return DefaultRetention, nil
	}
	var seconds int64
	switch typed := raw.(type) {
	case int:
		seconds = int64(typed)
	case int64:
		seconds = typed
	case float64:
		seconds = int64(typed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("gojob: invalid %s %q", ParamRetentionSeconds, typed)
		}
		seconds = parsed
	default:
		return 0, fmt.Errorf("gojob: invalid %s type %T", ParamRetentionSeconds, raw)
	}
	if seconds <= 0 {
		return 0, fmt.Errorf("gojob: %s must be positive", ParamRetentionSeconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

// LoggingHook writes worker lifecycle events to a glog logger.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	_, resolved := gologger.Resolve("strm.gojob", nil, logger)
	return &LoggingHook{logger: glog.Ensure(resolved)}
}

func (h *LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	h.log(ctx, "debug", "strm job started", event)
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.log(ctx, "info", "strm job succeeded", event)
}

func (h *LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	h.log(ctx, "error", "strm job failed", event)
}

func (h *LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	h.log(ctx, "warn", "strm job retry scheduled", event)
}

func (h *LoggingHook) log(ctx context.Context, level string, message string, event worker.Event) {
	if h == nil || h.logger == nil {
		return
	}
	logger := h.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	args := []any{
		"job_id", eventJobID(event),
		"attempt", event.Attempt,
		"duration_ms", event.Duration.Milliseconds(),
	}
	if event.Delay > 0 {
		args = append(args, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func eventJobID(event worker.Event) string {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message == nil {
		return ""
	}
	return strings.TrimSpace(message.JobID)
}

var _ worker.Hook = (*LoggingHook)(nil)
