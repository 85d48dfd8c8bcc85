package transport

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultHTTPClientTimeout = 30 * time.Second

type HTTPClientConfig struct {
	Timeout time.Duration
	// Instrumented wraps the transport with OpenTelemetry client spans.
	Instrumented bool
	Transport    http.RoundTripper
}

func NewHTTPClient(cfg HTTPClientConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPClientTimeout
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if cfg.Instrumented {
		base = otelhttp.NewTransport(base)
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: base,
	}
}
