package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-strm/core"
)

const (
	KindREST = "rest"

	// DefaultUserAgent is sent unless the request or DefaultHeaders override it.
	DefaultUserAgent = "go-strm"

	// Delivery responses are short acknowledgements.
	defaultResponseBodyLimit int64 = 64 << 10
)

// RESTAdapter performs one HTTP exchange against the delivery endpoint.
// Non-2xx answers come back as responses; only an exchange that cannot
// complete is an error.
type RESTAdapter struct {
	Client               core.HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client core.HTTPDoer) *RESTAdapter {
	if client == nil {
		client = NewHTTPClient(HTTPClientConfig{})
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{"User-Agent": DefaultUserAgent},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, failure(nil, goerrors.CategoryInternal, http.StatusInternalServerError,
			"transport: rest adapter requires an http client", map[string]any{"adapter": KindREST})
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newRequest(ctx, req)
	if err != nil {
		return core.TransportResponse{}, err
	}
	target := httpReq.URL.String()

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, exchangeFailure(err, "transport: execute http request", map[string]any{
			"adapter": KindREST,
			"method":  httpReq.Method,
			"url":     target,
		})
	}
	defer httpRes.Body.Close()

	limit := bodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	body, truncated, err := readBody(httpRes, limit)
	if err != nil {
		return core.TransportResponse{}, err
	}
	metadata := map[string]any{
		"duration_ms": time.Since(startedAt).Milliseconds(),
		"kind":        KindREST,
	}
	if truncated {
		metadata["body_truncated"] = true
		metadata["response_limit_b"] = limit
	}
	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Metadata:   metadata,
	}, nil
}

func (a *RESTAdapter) newRequest(ctx context.Context, req core.TransportRequest) (*http.Request, error) {
	raw := strings.TrimSpace(req.URL)
	target, err := url.Parse(raw)
	if err != nil {
		return nil, badRequest(err, "transport: invalid request url", map[string]any{"adapter": KindREST, "url": raw})
	}
	if !target.IsAbs() || target.Host == "" {
		return nil, badRequest(nil, "transport: absolute request url is required", map[string]any{"adapter": KindREST, "url": raw})
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, badRequest(err, "transport: create http request", map[string]any{"adapter": KindREST, "method": method})
	}
	applyHeaders(httpReq.Header, a.DefaultHeaders)
	applyHeaders(httpReq.Header, req.Headers)
	return httpReq, nil
}

func applyHeaders(dst http.Header, headers map[string]string) {
	for key, value := range headers {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		dst.Set(key, strings.TrimSpace(value))
	}
}

// readBody keeps at most limit bytes. A longer body is cut at limit and
// reported as truncated so the status still reaches the caller.
func readBody(res *http.Response, limit int64) ([]byte, bool, error) {
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, false, exchangeFailure(err, "transport: read response body", map[string]any{
			"adapter":     KindREST,
			"status_code": res.StatusCode,
		})
	}
	if int64(len(body)) > limit {
		return body[:limit], true, nil
	}
	return body, false, nil
}

// flattenHeaders joins repeated values with commas and keeps canonical keys.
func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func bodyLimit(requestLimit int64, adapterLimit int64) int64 {
	switch {
	case requestLimit > 0:
		return requestLimit
	case adapterLimit > 0:
		return adapterLimit
	default:
		return defaultResponseBodyLimit
	}
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
