package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type TokenAuthority interface {
	Authenticate(ctx context.Context) (TokenPair, error)
	Refresh(ctx context.Context, current TokenPair) (TokenPair, error)
}

type Sender interface {
	Send(ctx context.Context, token TokenPair, envelope Envelope) (RawResponse, error)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Signer interface {
	Sign(ctx context.Context, req *TransportRequest, token TokenPair) error
}

// DeliveryRecorder receives one entry per send attempt. Recorder failures never
// change the delivery outcome.
type DeliveryRecorder interface {
	RecordAttempt(ctx context.Context, attempt DeliveryAttempt) error
}

type DeliveryAttemptReader interface {
	List(ctx context.Context, filter DeliveryAttemptFilter) (DeliveryAttemptPage, error)
}

// RateLimitPolicy gates delivery attempts on the throttle state observed in
// earlier delivery responses.
type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ResponseMeta) error
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger
