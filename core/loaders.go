package core

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLFileLoader reads raw configuration values from a YAML document. A
// missing file yields an empty map when Optional is set.
type YAMLFileLoader struct {
	Path     string
	Optional bool
}

func NewYAMLFileLoader(path string) *YAMLFileLoader {
	return &YAMLFileLoader{Path: strings.TrimSpace(path)}
}

func (l *YAMLFileLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l == nil || strings.TrimSpace(l.Path) == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		if l.Optional && os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("core: read config file %s: %w", l.Path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: parse config file %s: %w", l.Path, err)
	}
	return raw, nil
}

const (
	EnvClientID     = "CLIENT_ID"
	EnvClientSecret = "CLIENT_SECRET"
	EnvBillingID    = "BILLING_ID"
)

// CredentialsFromEnv reads <prefix>CLIENT_ID, <prefix>CLIENT_SECRET and the
// optional <prefix>BILLING_ID.
func CredentialsFromEnv(prefix string) (Credentials, error) {
	creds := Credentials{
		ClientID:     os.Getenv(prefix + EnvClientID),
		ClientSecret: os.Getenv(prefix + EnvClientSecret),
		BillingID:    os.Getenv(prefix + EnvBillingID),
	}
	if strings.TrimSpace(creds.ClientID) == "" {
		return Credentials{}, badInputError(fmt.Sprintf("core: %s%s is not set", prefix, EnvClientID), nil)
	}
	if strings.TrimSpace(creds.ClientSecret) == "" {
		return Credentials{}, badInputError(fmt.Sprintf("core: %s%s is not set", prefix, EnvClientSecret), nil)
	}
	return creds.normalized(), nil
}

var _ RawConfigLoader = (*YAMLFileLoader)(nil)
