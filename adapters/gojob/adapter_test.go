package gojob

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	sqlstore "github.com/goliatone/go-strm/store/sql"
)

var _ AttemptPruner = (*sqlstore.DeliveryAttemptStore)(nil)

func TestNewPruneMessage(t *testing.T) {
	msg := NewPruneMessage(2 * time.Hour)
	if msg.JobID != JobIDPruneAttempts {
		t.Fatalf("expected prune job id, got %q", msg.JobID)
	}
	if got := msg.Parameters[ParamRetentionSeconds]; got != int64(7200) {
		t.Fatalf("expected retention 7200, got %#v", got)
	}
	if msg.IdempotencyKey != JobIDPruneAttempts+":7200" {
		t.Fatalf("unexpected idempotency key %q", msg.IdempotencyKey)
	}

	fallback := NewPruneMessage(0)
	if got := fallback.Parameters[ParamRetentionSeconds]; got != int64(DefaultRetention/time.Second) {
		t.Fatalf("expected default retention, got %#v", got)
	}
}

func TestSchedulePrune(t *testing.T) {
	enqueuer := &stubQueueEnqueuer{}
	if err := SchedulePrune(context.Background(), enqueuer, time.Hour); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != JobIDPruneAttempts {
		t.Fatalf("expected prune message enqueued")
	}
	if err := SchedulePrune(context.Background(), nil, time.Hour); err == nil {
		t.Fatalf("expected error for nil enqueuer")
	}
}

func TestNormalizeAttemptBoundaries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	opts := policy.NormalizeAttempt(queue.NackOptions{Requeue: true, Delay: time.Minute, Reason: " retry "}, 1)
	if !opts.Requeue || opts.DeadLetter {
		t.Fatalf("expected requeue before max attempts, got %+v", opts)
	}
	if opts.Delay != 10*time.Second {
		t.Fatalf("expected delay capped at max, got %s", opts.Delay)
	}
	if opts.Reason != "retry" {
		t.Fatalf("expected trimmed reason, got %q", opts.Reason)
	}

	opts = policy.NormalizeAttempt(queue.NackOptions{Requeue: true}, 3)
	if opts.Requeue || !opts.DeadLetter {
		t.Fatalf("expected dead letter at max attempts, got %+v", opts)
	}

	opts = policy.NormalizeAttempt(queue.NackOptions{Delay: -time.Second}, 1)
	if !opts.Requeue || opts.Delay != 0 {
		t.Fatalf("expected default requeue with zero delay, got %+v", opts)
	}
}

func TestBackoffDoublesUntilMax(t *testing.T) {
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	cases := map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second, 4: 5 * time.Second}
	for attempt, want := range cases {
		if got := policy.Backoff(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}
	if got := (RetryPolicy{}).Backoff(3); got != 0 {
		t.Fatalf("expected zero backoff without base delay, got %s", got)
	}
}

func TestNewPruneWorkerRequiresDependencies(t *testing.T) {
	if _, err := NewPruneWorker(nil, &stubPruner{}); err == nil {
		t.Fatalf("expected error for nil dequeuer")
	}
	if _, err := NewPruneWorker(&stubQueueDequeuer{}, nil); err == nil {
		t.Fatalf("expected error for nil pruner")
	}
}

func TestProcessNextPrunesAndAcks(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	delivery := &stubQueueDelivery{msg: NewPruneMessage(time.Hour)}
	pruner := &stubPruner{pruned: 4}
	hook := &recordingHook{}
	w, err := NewPruneWorker(&stubQueueDequeuer{delivery: delivery}, pruner,
		WithHook(hook),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	pruned, err := w.ProcessNext(context.Background())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if pruned != 4 {
		t.Fatalf("expected 4 pruned attempts, got %d", pruned)
	}
	if !pruner.cutoff.Equal(now.Add(-time.Hour)) {
		t.Fatalf("unexpected cutoff %s", pruner.cutoff)
	}
	if !delivery.acked || delivery.nacked {
		t.Fatalf("expected ack only")
	}
	if got := hook.calls(); len(got) != 2 || got[0] != "start" || got[1] != "success" {
		t.Fatalf("unexpected hook calls %v", got)
	}
}

func TestProcessNextEmptyQueue(t *testing.T) {
	w, err := NewPruneWorker(&stubQueueDequeuer{}, &stubPruner{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	pruned, err := w.ProcessNext(context.Background())
	if err != nil || pruned != 0 {
		t.Fatalf("expected no-op on empty queue, got %d %v", pruned, err)
	}
}

func TestProcessNextDeadLettersUnknownJob(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{JobID: "strm.unknown"}}
	pruner := &stubPruner{}
	hook := &recordingHook{}
	w, err := NewPruneWorker(&stubQueueDequeuer{delivery: delivery}, pruner, WithHook(hook))
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	if _, err := w.ProcessNext(context.Background()); err == nil {
		t.Fatalf("expected unsupported job error")
	}
	if pruner.called {
		t.Fatalf("expected pruner not to run")
	}
	if !delivery.nacked || !delivery.nackOpts.DeadLetter || delivery.nackOpts.Requeue {
		t.Fatalf("expected dead letter nack, got %+v", delivery.nackOpts)
	}
	if got := hook.calls(); len(got) != 2 || got[1] != "failure" {
		t.Fatalf("unexpected hook calls %v", got)
	}
}

func TestProcessNextDeadLettersInvalidRetention(t *testing.T) {
	delivery := &stubQueueDelivery{msg: &job.ExecutionMessage{
		JobID:      JobIDPruneAttempts,
		Parameters: map[string]any{ParamRetentionSeconds: "soon"},
	}}
	w, err := NewPruneWorker(&stubQueueDequeuer{delivery: delivery}, &stubPruner{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if _, err := w.ProcessNext(context.Background()); err == nil {
		t.Fatalf("expected invalid retention error")
	}
	if !delivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter nack, got %+v", delivery.nackOpts)
	}
}

func TestProcessNextRetriesPruneFailureUntilMax(t *testing.T) {
	msg := NewPruneMessage(time.Hour)
	pruner := &stubPruner{err: errors.New("database locked")}
	hook := &recordingHook{}
	dequeuer := &stubQueueDequeuer{}
	w, err := NewPruneWorker(dequeuer, pruner,
		WithHook(hook),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseDelay: time.Second, DeadLetterOnMax: true}),
	)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}

	first := &stubQueueDelivery{msg: msg}
	dequeuer.delivery = first
	if _, err := w.ProcessNext(context.Background()); err == nil {
		t.Fatalf("expected prune failure")
	}
	if !first.nackOpts.Requeue || first.nackOpts.DeadLetter || first.nackOpts.Delay != time.Second {
		t.Fatalf("expected delayed requeue on first attempt, got %+v", first.nackOpts)
	}

	second := &stubQueueDelivery{msg: msg}
	dequeuer.delivery = second
	if _, err := w.ProcessNext(context.Background()); err == nil {
		t.Fatalf("expected prune failure")
	}
	if second.nackOpts.Requeue || !second.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter on final attempt, got %+v", second.nackOpts)
	}

	got := hook.calls()
	want := []string{"start", "retry", "start", "failure"}
	if len(got) != len(want) {
		t.Fatalf("unexpected hook calls %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected hook calls %v", got)
		}
	}
}

func TestProcessNextSurfacesDequeueError(t *testing.T) {
	w, err := NewPruneWorker(&stubQueueDequeuer{err: errors.New("broker down")}, &stubPruner{})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if _, err := w.ProcessNext(context.Background()); err == nil {
		t.Fatalf("expected dequeue error")
	}
}

func TestLoggingHookResolvesJobID(t *testing.T) {
	hook := NewLoggingHook(nil)
	event := worker.Event{Message: NewPruneMessage(time.Hour), Attempt: 1, Err: errors.New("boom")}
	hook.OnFailure(context.Background(), event)
	hook.OnRetry(context.Background(), event)
	if got := eventJobID(event); got != JobIDPruneAttempts {
		t.Fatalf("unexpected job id %q", got)
	}
	if got := eventJobID(worker.Event{Delivery: &stubQueueDelivery{msg: NewPruneMessage(time.Hour)}}); got != JobIDPruneAttempts {
		t.Fatalf("expected job id from delivery, got %q", got)
	}
}

type stubPruner struct {
	pruned int
	err    error
	called bool
	cutoff time.Time
}

func (s *stubPruner) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.called = true
	s.cutoff = cutoff
	return s.pruned, s.err
}

type recordingHook struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHook) record(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, name)
}

func (h *recordingHook) calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *recordingHook) OnStart(context.Context, worker.Event)   { h.record("start") }
func (h *recordingHook) OnSuccess(context.Context, worker.Event) { h.record("success") }
func (h *recordingHook) OnFailure(context.Context, worker.Event) { h.record("failure") }
func (h *recordingHook) OnRetry(context.Context, worker.Event)   { h.record("retry") }

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
	err      error
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nacked   bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nacked = true
	s.nackOpts = opts
	return nil
}
