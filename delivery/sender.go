package delivery

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-strm/core"
	"github.com/goliatone/go-strm/transport"
)

const (
	HeaderSchemaRef   = "Strm-Schema-Ref"
	HeaderContentType = "Content-Type"

	contentTypeAvroBinary = "application/octet-stream"

	// RateLimitBucket is the throttle bucket shared by every event sent to one
	// delivery endpoint.
	RateLimitBucket = "events"
)

type Config struct {
	APIURL         string
	Adapter        core.TransportAdapter
	Signer         core.Signer
	RateLimit      core.RateLimitPolicy
	RequestTimeout time.Duration
	// Logger receives throttle state failures, which never change a delivery
	// outcome. LoggerProvider is consulted first when set.
	Logger         core.Logger
	LoggerProvider core.LoggerProvider
}

// Sender turns an envelope into one signed POST to the delivery endpoint.
type Sender struct {
	apiURL    string
	adapter   core.TransportAdapter
	signer    core.Signer
	rateLimit core.RateLimitPolicy
	timeout   time.Duration
	logger    core.Logger
}

func NewSender(cfg Config) (*Sender, error) {
	apiURL := strings.TrimSpace(cfg.APIURL)
	if apiURL == "" {
		apiURL = core.DefaultAPIURL
	}
	parsed, err := url.Parse(apiURL)
	if err != nil || parsed.Host == "" {
		return nil, core.NewBadInputError("delivery: api url must be absolute", map[string]any{"api_url": apiURL})
	}
	adapter := cfg.Adapter
	if adapter == nil {
		adapter = transport.NewRESTAdapter(transport.NewHTTPClient(transport.HTTPClientConfig{Timeout: cfg.RequestTimeout}))
	}
	signer := cfg.Signer
	if signer == nil {
		signer = core.BearerTokenSigner{}
	}
	_, logger := glog.Resolve("strm.delivery", cfg.LoggerProvider, cfg.Logger)
	return &Sender{
		apiURL:    apiURL,
		adapter:   adapter,
		signer:    signer,
		rateLimit: cfg.RateLimit,
		timeout:   cfg.RequestTimeout,
		logger:    glog.Ensure(logger),
	}, nil
}

func (s *Sender) APIURL() string {
	if s == nil {
		return ""
	}
	return s.apiURL
}

func (s *Sender) Send(ctx context.Context, token core.TokenPair, envelope core.Envelope) (core.RawResponse, error) {
	if s == nil || s.adapter == nil || s.signer == nil {
		return core.RawResponse{}, core.NewInternalError("delivery: sender is not configured", nil)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return core.RawResponse{}, core.NewBadInputError("delivery: access token is required", nil)
	}
	if envelope == nil {
		return core.RawResponse{}, core.NewBadInputError("delivery: envelope is required", nil)
	}
	schemaRef := strings.TrimSpace(envelope.SchemaRef())
	if schemaRef == "" {
		return core.RawResponse{}, core.NewBadInputError("delivery: envelope schema ref is required", nil)
	}

	body, err := envelope.Encode()
	if err != nil {
		return core.RawResponse{}, core.NewEncodingError(err, "delivery: encode envelope", map[string]any{
			"schema_ref": schemaRef,
		})
	}

	limitKey := core.RateLimitKey{Endpoint: s.apiURL, BucketKey: RateLimitBucket}
	if s.rateLimit != nil {
		if err := s.rateLimit.BeforeCall(ctx, limitKey); err != nil {
			return core.RawResponse{}, rateLimitError(err, schemaRef)
		}
	}

	req := core.TransportRequest{
		Method: http.MethodPost,
		URL:    s.apiURL,
		Headers: map[string]string{
			HeaderSchemaRef:   schemaRef,
			HeaderContentType: contentTypeAvroBinary,
		},
		Body:    body,
		Timeout: s.timeout,
	}
	if err := s.signer.Sign(ctx, &req, token); err != nil {
		return core.RawResponse{}, err
	}

	res, err := s.adapter.Do(ctx, req)
	if err != nil {
		if core.IsTransportError(err) || core.IsBadInputError(err) {
			return core.RawResponse{}, err
		}
		return core.RawResponse{}, core.NewTransportError(err, "delivery: send event", map[string]any{
			"schema_ref": schemaRef,
			"adapter":    s.adapter.Kind(),
		})
	}
	if s.rateLimit != nil {
		err := s.rateLimit.AfterCall(ctx, limitKey, core.ResponseMeta{
			StatusCode: res.StatusCode,
			Headers:    res.Headers,
			Metadata:   map[string]any{"schema_ref": schemaRef},
		})
		if err != nil {
			s.logger.WithContext(ctx).Warn("delivery: rate limit state not saved",
				"schema_ref", schemaRef,
				"status_code", res.StatusCode,
				"error", err,
			)
		}
	}
	return core.RawResponse{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Body:       res.Body,
	}, nil
}

func rateLimitError(err error, schemaRef string) error {
	if core.IsRateLimitedError(err) {
		return err
	}
	var mapper interface{ ToServiceError() *goerrors.Error }
	if errors.As(err, &mapper) {
		return mapper.ToServiceError()
	}
	return core.NewRateLimitedError(err, "delivery: rate limit check failed", map[string]any{
		"schema_ref": schemaRef,
	})
}

var _ core.Sender = (*Sender)(nil)
