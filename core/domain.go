package core

import (
	"fmt"
	"strings"
	"time"
)

const BearerScheme = "Bearer"

type AuthEncoding string

const (
	// AuthEncodingForm posts an OAuth2 client_credentials grant.
	AuthEncodingForm AuthEncoding = "form"
	// AuthEncodingJSON posts the credential record as a JSON document.
	AuthEncodingJSON AuthEncoding = "json"
)

func (e AuthEncoding) Valid() bool {
	switch e {
	case AuthEncodingForm, AuthEncodingJSON:
		return true
	default:
		return false
	}
}

func ParseAuthEncoding(value string) (AuthEncoding, error) {
	encoding := AuthEncoding(strings.TrimSpace(strings.ToLower(value)))
	if encoding == "" {
		return AuthEncodingForm, nil
	}
	if !encoding.Valid() {
		return "", badInputError(fmt.Sprintf("core: unsupported auth encoding %q", value), map[string]any{"auth_encoding": value})
	}
	return encoding, nil
}

type Credentials struct {
	ClientID     string
	ClientSecret string
	BillingID    string
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return badInputError("core: client id is required", nil)
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return badInputError("core: client secret is required", nil)
	}
	return nil
}

func (c Credentials) normalized() Credentials {
	return Credentials{
		ClientID:     strings.TrimSpace(c.ClientID),
		ClientSecret: strings.TrimSpace(c.ClientSecret),
		BillingID:    strings.TrimSpace(c.BillingID),
	}
}

// TokenPair is either zero (before the first authentication) or complete.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

func (t TokenPair) IsZero() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

func (t TokenPair) Complete() bool {
	return strings.TrimSpace(t.AccessToken) != "" && strings.TrimSpace(t.RefreshToken) != ""
}

func (t TokenPair) Bearer() string {
	return BearerScheme + " " + t.AccessToken
}

// Merge applies a refresh response on top of t. Identity endpoints that do not
// rotate the refresh value answer with an access value only; the current
// refresh value is kept in that case.
func (t TokenPair) Merge(next TokenPair) TokenPair {
	merged := TokenPair{
		AccessToken:  next.AccessToken,
		RefreshToken: next.RefreshToken,
		ExpiresAt:    cloneTimePointer(next.ExpiresAt),
	}
	if strings.TrimSpace(merged.RefreshToken) == "" {
		merged.RefreshToken = t.RefreshToken
	}
	return merged
}

type Envelope interface {
	SchemaRef() string
	SchemaDefinition() string
	Encode() ([]byte, error)
}

type DeliveryOutcome struct {
	StatusCode int
	Body       string
}

type RawResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

type DeliveryAttempt struct {
	ID         string
	DeliveryID string
	SchemaRef  string
	Attempt    int
	StatusCode int
	Refreshed  bool
	Error      string
	DurationMS int64
	CreatedAt  time.Time
}

type DeliveryAttemptFilter struct {
	DeliveryID string
	SchemaRef  string
	StatusCode int
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

type DeliveryAttemptPage struct {
	Items      []DeliveryAttempt
	Page       int
	PerPage    int
	Total      int
	HasNext    bool
	NextCursor string
}

type RateLimitKey struct {
	Endpoint  string
	BucketKey string
}

type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}
