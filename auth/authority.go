package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-strm/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20
	grantTypeClientCredentials = "client_credentials"
	grantTypeRefreshToken      = "refresh_token"
	contentTypeForm            = "application/x-www-form-urlencoded"
	contentTypeJSON            = "application/json"
	jsonAuthenticatePathSuffix = "/auth"
	jsonRefreshPathSuffix      = "/refresh"
	operationAuthenticate      = "authenticate"
	operationRefresh           = "refresh"
)

type Config struct {
	Credentials    core.Credentials
	TokenURL       string
	Encoding       core.AuthEncoding
	HTTPClient     core.HTTPDoer
	RequestTimeout time.Duration
	Now            func() time.Time
}

// HTTPTokenAuthority exchanges client credentials and refresh values with the
// identity endpoint. It holds no token state; the caller owns the pair.
type HTTPTokenAuthority struct {
	config     Config
	httpClient core.HTTPDoer
}

func NewHTTPTokenAuthority(cfg Config) (*HTTPTokenAuthority, error) {
	creds := core.Credentials{
		ClientID:     strings.TrimSpace(cfg.Credentials.ClientID),
		ClientSecret: strings.TrimSpace(cfg.Credentials.ClientSecret),
		BillingID:    strings.TrimSpace(cfg.Credentials.BillingID),
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	tokenURL := strings.TrimRight(strings.TrimSpace(cfg.TokenURL), "/")
	if tokenURL == "" {
		tokenURL = core.DefaultAuthURL
	}
	if _, err := url.ParseRequestURI(tokenURL); err != nil {
		return nil, core.NewBadInputError(fmt.Sprintf("auth: invalid token url %q", tokenURL), nil)
	}
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = core.AuthEncodingForm
	}
	if !encoding.Valid() {
		return nil, core.NewBadInputError(fmt.Sprintf("auth: unsupported encoding %q", encoding), nil)
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTokenRequestTimeout
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &HTTPTokenAuthority{
		config: Config{
			Credentials:    creds,
			TokenURL:       tokenURL,
			Encoding:       encoding,
			RequestTimeout: timeout,
			Now:            now,
		},
		httpClient: httpClient,
	}, nil
}

func (a *HTTPTokenAuthority) Encoding() core.AuthEncoding {
	if a == nil {
		return ""
	}
	return a.config.Encoding
}

func (a *HTTPTokenAuthority) Authenticate(ctx context.Context) (core.TokenPair, error) {
	if a == nil || a.httpClient == nil {
		return core.TokenPair{}, core.NewInternalError("auth: token authority is not configured", nil)
	}

	var endpoint, contentType string
	var body []byte
	switch a.config.Encoding {
	case core.AuthEncodingJSON:
		encoded, err := json.Marshal(credentialRecord{
			BillingID:    a.config.Credentials.BillingID,
			ClientID:     a.config.Credentials.ClientID,
			ClientSecret: a.config.Credentials.ClientSecret,
		})
		if err != nil {
			return core.TokenPair{}, core.NewAuthError(err, "auth: encode credential record", 0, nil)
		}
		endpoint = a.config.TokenURL + jsonAuthenticatePathSuffix
		contentType = contentTypeJSON
		body = encoded
	default:
		values := url.Values{}
		values.Set("grant_type", grantTypeClientCredentials)
		values.Set("client_id", a.config.Credentials.ClientID)
		values.Set("client_secret", a.config.Credentials.ClientSecret)
		endpoint = a.config.TokenURL
		contentType = contentTypeForm
		body = []byte(values.Encode())
	}

	pair, status, err := a.exchange(ctx, operationAuthenticate, endpoint, contentType, body)
	if err != nil {
		return core.TokenPair{}, err
	}
	if strings.TrimSpace(pair.RefreshToken) == "" {
		return core.TokenPair{}, core.NewAuthError(nil, "auth: authenticate response missing refresh token", status, map[string]any{
			"operation": operationAuthenticate,
		})
	}
	return pair, nil
}

// Refresh returns current merged with the identity endpoint's answer. An
// answer without a refresh value keeps the current one.
func (a *HTTPTokenAuthority) Refresh(ctx context.Context, current core.TokenPair) (core.TokenPair, error) {
	if a == nil || a.httpClient == nil {
		return core.TokenPair{}, core.NewInternalError("auth: token authority is not configured", nil)
	}
	refreshToken := strings.TrimSpace(current.RefreshToken)
	if refreshToken == "" {
		return core.TokenPair{}, core.NewAuthError(nil, "auth: refresh token is required", 0, map[string]any{
			"operation": operationRefresh,
		})
	}

	var endpoint, contentType string
	var body []byte
	switch a.config.Encoding {
	case core.AuthEncodingJSON:
		encoded, err := json.Marshal(refreshRecord{RefreshToken: refreshToken})
		if err != nil {
			return core.TokenPair{}, core.NewAuthError(err, "auth: encode refresh record", 0, nil)
		}
		endpoint = a.config.TokenURL + jsonRefreshPathSuffix
		contentType = contentTypeJSON
		body = encoded
	default:
		values := url.Values{}
		values.Set("grant_type", grantTypeRefreshToken)
		values.Set("refresh_token", refreshToken)
		values.Set("client_id", a.config.Credentials.ClientID)
		values.Set("client_secret", a.config.Credentials.ClientSecret)
		endpoint = a.config.TokenURL
		contentType = contentTypeForm
		body = []byte(values.Encode())
	}

	next, _, err := a.exchange(ctx, operationRefresh, endpoint, contentType, body)
	if err != nil {
		return core.TokenPair{}, err
	}
	return current.Merge(next), nil
}

type credentialRecord struct {
	BillingID    string `json:"billingId,omitempty"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type refreshRecord struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *HTTPTokenAuthority) exchange(
	ctx context.Context,
	operation string,
	endpoint string,
	contentType string,
	body []byte,
) (core.TokenPair, int, error) {
	metadata := map[string]any{
		"operation": operation,
		"encoding":  string(a.config.Encoding),
	}
	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if a.config.RequestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, a.config.RequestTimeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return core.TokenPair{}, 0, core.NewAuthError(err, "auth: build "+operation+" request", 0, metadata)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", contentTypeJSON)

	response, err := a.httpClient.Do(httpReq)
	if err != nil {
		return core.TokenPair{}, 0, core.NewAuthError(err, "auth: "+operation+" request failed", 0, metadata)
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if err != nil {
		return core.TokenPair{}, response.StatusCode, core.NewAuthError(err, "auth: read "+operation+" response", response.StatusCode, metadata)
	}
	if int64(len(raw)) > maxTokenResponseBodyBytes {
		return core.TokenPair{}, response.StatusCode, core.NewAuthError(nil,
			fmt.Sprintf("auth: %s response exceeds %d bytes", operation, maxTokenResponseBodyBytes),
			response.StatusCode, metadata)
	}

	payload := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
				return core.TokenPair{}, response.StatusCode, core.NewAuthError(nil,
					fmt.Sprintf("auth: %s rejected with status %d", operation, response.StatusCode),
					response.StatusCode, metadata)
			}
			return core.TokenPair{}, response.StatusCode, core.NewAuthError(err, "auth: decode "+operation+" response", response.StatusCode, metadata)
		}
	}

	errorCode := readString(payload, "error")
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices || errorCode != "" {
		description := firstNonEmpty(readString(payload, "error_description"), errorCode)
		if description == "" {
			description = fmt.Sprintf("status %d", response.StatusCode)
		}
		if errorCode != "" {
			metadata["error_code"] = errorCode
		}
		return core.TokenPair{}, response.StatusCode, core.NewAuthError(nil, "auth: "+operation+" rejected: "+description, response.StatusCode, metadata)
	}

	accessToken := readString(payload, "access_token", "accessToken")
	if accessToken == "" {
		return core.TokenPair{}, response.StatusCode, core.NewAuthError(nil, "auth: "+operation+" response missing access token", response.StatusCode, metadata)
	}
	return core.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: readString(payload, "refresh_token", "refreshToken"),
		ExpiresAt:    accessTokenExpiry(accessToken, readInt64(payload, "expires_in", "expiresIn"), a.config.Now()),
	}, response.StatusCode, nil
}

var _ core.TokenAuthority = (*HTTPTokenAuthority)(nil)
