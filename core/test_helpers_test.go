package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type fakeAuthority struct {
	mu             sync.Mutex
	authenticates  int
	refreshes      int
	authenticateFn func(context.Context) (TokenPair, error)
	refreshFn      func(context.Context, TokenPair) (TokenPair, error)
}

func (a *fakeAuthority) Authenticate(ctx context.Context) (TokenPair, error) {
	a.mu.Lock()
	a.authenticates++
	fn := a.authenticateFn
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return TokenPair{AccessToken: "access_0", RefreshToken: "refresh_0"}, nil
}

func (a *fakeAuthority) Refresh(ctx context.Context, current TokenPair) (TokenPair, error) {
	a.mu.Lock()
	a.refreshes++
	count := a.refreshes
	fn := a.refreshFn
	a.mu.Unlock()
	if fn != nil {
		return fn(ctx, current)
	}
	return TokenPair{
		AccessToken:  fmt.Sprintf("access_%d", count),
		RefreshToken: fmt.Sprintf("refresh_%d", count),
	}, nil
}

func (a *fakeAuthority) counts() (int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.authenticates, a.refreshes
}

type fakeSender struct {
	mu     sync.Mutex
	calls  int
	tokens []string
	sendFn func(context.Context, TokenPair, Envelope) (RawResponse, error)
}

func (s *fakeSender) Send(ctx context.Context, token TokenPair, envelope Envelope) (RawResponse, error) {
	s.mu.Lock()
	s.calls++
	s.tokens = append(s.tokens, token.AccessToken)
	fn := s.sendFn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx, token, envelope)
	}
	return RawResponse{StatusCode: 204}, nil
}

func (s *fakeSender) snapshot() (int, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]string(nil), s.tokens...)
}

func statusSender(status int, body string) *fakeSender {
	return &fakeSender{sendFn: func(context.Context, TokenPair, Envelope) (RawResponse, error) {
		return RawResponse{StatusCode: status, Body: []byte(body)}, nil
	}}
}

type testEnvelope struct {
	ref     string
	payload []byte
	err     error
}

func (e testEnvelope) SchemaRef() string { return e.ref }

func (e testEnvelope) SchemaDefinition() string { return `{"type":"string"}` }

func (e testEnvelope) Encode() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return append([]byte(nil), e.payload...), nil
}

func demoEnvelope() testEnvelope {
	return testEnvelope{ref: "strmprivacy/demo/1.0.2", payload: []byte{0x02, 'a'}}
}

type memoryRecorder struct {
	mu       sync.Mutex
	attempts []DeliveryAttempt
	err      error
}

func (r *memoryRecorder) RecordAttempt(_ context.Context, attempt DeliveryAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return r.err
}

func (r *memoryRecorder) snapshot() []DeliveryAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DeliveryAttempt(nil), r.attempts...)
}

func sequentialIDs() func() string {
	var counter atomic.Int64
	return func() string {
		return fmt.Sprintf("id_%d", counter.Add(1))
	}
}

func testCredentials() Credentials {
	return Credentials{ClientID: "client_1", ClientSecret: "secret_1"}
}

func newTestClient(authority TokenAuthority, sender Sender, opts ...Option) (*Client, error) {
	base := []Option{
		WithTokenAuthority(authority),
		WithSender(sender),
		WithIDGenerator(sequentialIDs()),
	}
	return NewClient(context.Background(), testCredentials(), Config{}, append(base, opts...)...)
}
