// Package strm delivers schema-typed events to the STRM Privacy ingestion
// endpoint, handling credential exchange and bearer token renewal.
package strm

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-strm/auth"
	"github.com/goliatone/go-strm/core"
	"github.com/goliatone/go-strm/delivery"
	"github.com/goliatone/go-strm/ratelimit"
	"github.com/goliatone/go-strm/transport"
)

type Config = core.Config

type Credentials = core.Credentials

type TokenPair = core.TokenPair

type Envelope = core.Envelope

type DeliveryOutcome = core.DeliveryOutcome

type DeliveryAttempt = core.DeliveryAttempt

type DeliveryRecorder = core.DeliveryRecorder

type AuthEncoding = core.AuthEncoding

type Client = core.Client

const (
	DefaultAuthURL    = core.DefaultAuthURL
	DefaultAPIURL     = core.DefaultAPIURL
	DefaultMaxRetries = core.DefaultMaxRetries

	AuthEncodingForm = core.AuthEncodingForm
	AuthEncodingJSON = core.AuthEncodingJSON
)

var (
	IsAuthError      = core.IsAuthError
	IsTransportError = core.IsTransportError
	IsEncodingError  = core.IsEncodingError
	IsBadInputError  = core.IsBadInputError

	IsRateLimitedError = core.IsRateLimitedError

	CredentialsFromEnv = core.CredentialsFromEnv
)

type Option func(*clientOptions)

type clientOptions struct {
	config       core.Config
	httpClient   core.HTTPDoer
	instrumented bool
	rateLimit    core.RateLimitPolicy
	logger       core.Logger
	provider     core.LoggerProvider
	coreOptions  []core.Option
}

func WithAuthURL(authURL string) Option {
	return func(o *clientOptions) {
		o.config.AuthURL = strings.TrimSpace(authURL)
	}
}

func WithAPIURL(apiURL string) Option {
	return func(o *clientOptions) {
		o.config.APIURL = strings.TrimSpace(apiURL)
	}
}

func WithAuthEncoding(encoding AuthEncoding) Option {
	return func(o *clientOptions) {
		o.config.AuthEncoding = encoding
	}
}

func WithMaxRetries(maxRetries int) Option {
	return func(o *clientOptions) {
		o.config.MaxRetries = maxRetries
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.config.RequestTimeout = timeout
	}
}

func WithClientName(name string) Option {
	return func(o *clientOptions) {
		o.config.ClientName = strings.TrimSpace(name)
	}
}

// WithHTTPClient sets the HTTP client shared by the identity and delivery
// exchanges.
func WithHTTPClient(client core.HTTPDoer) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithInstrumentedHTTP wraps the default HTTP transport with OpenTelemetry
// client spans. Ignored when WithHTTPClient is used.
func WithInstrumentedHTTP() Option {
	return func(o *clientOptions) {
		o.instrumented = true
	}
}

// WithRateLimitPolicy gates every delivery attempt on policy.
func WithRateLimitPolicy(policy core.RateLimitPolicy) Option {
	return func(o *clientOptions) {
		o.rateLimit = policy
	}
}

// WithAdaptiveRateLimit backs off in memory after the delivery endpoint answers
// 429 or reports an exhausted X-RateLimit budget.
func WithAdaptiveRateLimit() Option {
	return WithRateLimitPolicy(ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore()))
}

// WithCoreOptions passes lower level options (logging, metrics, config
// loading, recorders) through to core.NewClient.
func WithCoreOptions(opts ...core.Option) Option {
	return func(o *clientOptions) {
		o.coreOptions = append(o.coreOptions, opts...)
	}
}

func WithLogger(logger core.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
		o.coreOptions = append(o.coreOptions, core.WithLogger(logger))
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *clientOptions) {
		o.provider = provider
		o.coreOptions = append(o.coreOptions, core.WithLoggerProvider(provider))
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return WithCoreOptions(core.WithMetricsRecorder(recorder))
}

func WithDeliveryRecorder(recorder DeliveryRecorder) Option {
	return WithCoreOptions(core.WithDeliveryRecorder(recorder))
}

// WithConfigFile loads configuration from a YAML file before runtime options
// are applied.
func WithConfigFile(path string) Option {
	return WithCoreOptions(core.WithConfigProvider(core.NewCfgxConfigProvider(core.NewYAMLFileLoader(path))))
}

// NewClient authenticates with creds and returns a ready client. No client is
// returned when authentication fails.
func NewClient(ctx context.Context, creds Credentials, opts ...Option) (*Client, error) {
	options := clientOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	coreOpts := make([]core.Option, 0, len(options.coreOptions)+2)
	coreOpts = append(coreOpts,
		core.WithTokenAuthorityFactory(func(cfg core.Config, creds core.Credentials) (core.TokenAuthority, error) {
			return auth.NewHTTPTokenAuthority(auth.Config{
				Credentials:    creds,
				TokenURL:       cfg.AuthURL,
				Encoding:       cfg.AuthEncoding,
				HTTPClient:     options.resolveHTTPClient(cfg),
				RequestTimeout: cfg.RequestTimeout,
			})
		}),
		core.WithSenderFactory(func(cfg core.Config) (core.Sender, error) {
			return delivery.NewSender(delivery.Config{
				APIURL:         cfg.APIURL,
				Adapter:        transport.NewRESTAdapter(options.resolveHTTPClient(cfg)),
				RateLimit:      options.rateLimit,
				RequestTimeout: cfg.RequestTimeout,
				Logger:         options.logger,
				LoggerProvider: options.provider,
			})
		}),
	)
	coreOpts = append(coreOpts, options.coreOptions...)
	return core.NewClient(ctx, creds, options.config, coreOpts...)
}

// NewDefaultClient uses the production identity and delivery endpoints.
func NewDefaultClient(ctx context.Context, clientID string, clientSecret string, opts ...Option) (*Client, error) {
	return NewClient(ctx, Credentials{ClientID: clientID, ClientSecret: clientSecret}, opts...)
}

func (o *clientOptions) resolveHTTPClient(cfg core.Config) core.HTTPDoer {
	if o.httpClient == nil {
		o.httpClient = transport.NewHTTPClient(transport.HTTPClientConfig{
			Timeout:      cfg.RequestTimeout,
			Instrumented: o.instrumented,
		})
	}
	return o.httpClient
}
