package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
	"github.com/google/uuid"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type TokenAuthorityFactory func(cfg Config, creds Credentials) (TokenAuthority, error)

type SenderFactory func(cfg Config) (Sender, error)

type clientBuilder struct {
	runtimeConfig    Config
	logger           Logger
	loggerProvider   LoggerProvider
	metricsRecorder  MetricsRecorder
	configProvider   ConfigProvider
	optionsResolver  OptionsResolver
	authority        TokenAuthority
	authorityFactory TokenAuthorityFactory
	sender           Sender
	senderFactory    SenderFactory
	recorders        []DeliveryRecorder
	idGenerator      func() string
}

type Option func(*clientBuilder)

func WithLogger(logger Logger) Option {
	return func(b *clientBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *clientBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *clientBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *clientBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *clientBuilder) {
		b.optionsResolver = resolver
	}
}

// WithTokenAuthority takes precedence over WithTokenAuthorityFactory.
func WithTokenAuthority(authority TokenAuthority) Option {
	return func(b *clientBuilder) {
		b.authority = authority
	}
}

func WithTokenAuthorityFactory(factory TokenAuthorityFactory) Option {
	return func(b *clientBuilder) {
		b.authorityFactory = factory
	}
}

// WithSender takes precedence over WithSenderFactory.
func WithSender(sender Sender) Option {
	return func(b *clientBuilder) {
		b.sender = sender
	}
}

func WithSenderFactory(factory SenderFactory) Option {
	return func(b *clientBuilder) {
		b.senderFactory = factory
	}
}

// WithDeliveryRecorder may be passed more than once; every recorder receives
// every attempt.
func WithDeliveryRecorder(recorder DeliveryRecorder) Option {
	return func(b *clientBuilder) {
		if recorder != nil {
			b.recorders = append(b.recorders, recorder)
		}
	}
}

func WithIDGenerator(generator func() string) Option {
	return func(b *clientBuilder) {
		b.idGenerator = generator
	}
}

func defaultClientBuilder(runtime Config) clientBuilder {
	loggerProvider, logger := glog.Resolve("strm", nil, nil)
	return clientBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		idGenerator:     uuid.NewString,
	}
}

func (b *clientBuilder) resolveConfig(ctx context.Context) (Config, error) {
	if b.configProvider == nil {
		b.configProvider = NewCfgxConfigProvider(nil)
	}
	if b.optionsResolver == nil {
		b.optionsResolver = GoOptionsResolver{}
	}
	defaults := DefaultConfig()
	loaded, err := b.configProvider.Load(ctx, defaults)
	if err != nil {
		return Config{}, wrapBadInput(err, "core: load config")
	}
	resolved, err := b.optionsResolver.Resolve(defaults, loaded, b.runtimeConfig)
	if err != nil {
		return Config{}, wrapBadInput(err, "core: resolve config")
	}
	return resolved, nil
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	return copyAnyMap(l.Values), nil
}

func NewStaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: copyAnyMap(values)}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults < loaded config < runtime config. Zero
// values in the loaded and runtime layers do not override lower layers.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ClientName) != "" {
		layer["client_name"] = strings.TrimSpace(cfg.ClientName)
	}
	if includeZero || strings.TrimSpace(cfg.AuthURL) != "" {
		layer["auth_url"] = strings.TrimSpace(cfg.AuthURL)
	}
	if includeZero || strings.TrimSpace(cfg.APIURL) != "" {
		layer["api_url"] = strings.TrimSpace(cfg.APIURL)
	}
	if includeZero || cfg.AuthEncoding != "" {
		layer["auth_encoding"] = string(cfg.AuthEncoding)
	}
	if includeZero || cfg.MaxRetries != 0 {
		layer["max_retries"] = cfg.MaxRetries
	}
	if includeZero || cfg.RequestTimeout != 0 {
		layer["request_timeout"] = cfg.RequestTimeout
	}
	return layer
}
