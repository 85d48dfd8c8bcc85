package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAuthURL        = "https://accounts.strmprivacy.io/auth/realms/streams/protocol/openid-connect/token"
	DefaultAPIURL         = "https://events.strmprivacy.io/event"
	DefaultMaxRetries     = 3
	DefaultRequestTimeout = 30 * time.Second
)

type Config struct {
	ClientName     string        `koanf:"client_name" mapstructure:"client_name"`
	AuthURL        string        `koanf:"auth_url" mapstructure:"auth_url"`
	APIURL         string        `koanf:"api_url" mapstructure:"api_url"`
	AuthEncoding   AuthEncoding  `koanf:"auth_encoding" mapstructure:"auth_encoding"`
	MaxRetries     int           `koanf:"max_retries" mapstructure:"max_retries"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

func DefaultConfig() Config {
	return Config{
		ClientName:     "strm",
		AuthURL:        DefaultAuthURL,
		APIURL:         DefaultAPIURL,
		AuthEncoding:   AuthEncodingForm,
		MaxRetries:     DefaultMaxRetries,
		RequestTimeout: DefaultRequestTimeout,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ClientName) == "" {
		return fmt.Errorf("core: client_name is required")
	}
	if err := validateEndpoint("auth_url", c.AuthURL); err != nil {
		return err
	}
	if err := validateEndpoint("api_url", c.APIURL); err != nil {
		return err
	}
	if !c.AuthEncoding.Valid() {
		return fmt.Errorf("core: auth_encoding %q is invalid", c.AuthEncoding)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("core: max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("core: request_timeout must not be negative")
	}
	return nil
}

func validateEndpoint(field string, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("core: %s is required", field)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("core: %s is invalid: %w", field, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("core: %s must be an http(s) url", field)
	}
	if parsed.Host == "" {
		return fmt.Errorf("core: %s host is required", field)
	}
	return nil
}
