package core

import (
	"context"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Client is the delivery orchestrator. A Client only exists after a
// successful authentication.
type Client struct {
	config          Config
	store           *TokenStore
	authority       TokenAuthority
	sender          Sender
	recorder        DeliveryRecorder
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	newID           func() string
}

type ClientDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	TokenAuthority  TokenAuthority
	Sender          Sender
	Recorder        DeliveryRecorder
}

// NewClient resolves configuration, wires the token authority and sender, and
// authenticates. Any failure returns a nil client.
func NewClient(ctx context.Context, creds Credentials, cfg Config, opts ...Option) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	creds = creds.normalized()

	builder := defaultClientBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("strm", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("strm"); named != nil {
			logger = glog.Ensure(named)
		}
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.idGenerator == nil {
		builder.idGenerator = uuid.NewString
	}

	finalConfig, err := builder.resolveConfig(ctx)
	if err != nil {
		return nil, err
	}

	authority := builder.authority
	if authority == nil && builder.authorityFactory != nil {
		authority, err = builder.authorityFactory(finalConfig, creds)
		if err != nil {
			return nil, wrapBadInput(err, "core: build token authority")
		}
	}
	if authority == nil {
		return nil, NewInternalError("core: token authority is required", nil)
	}

	sender := builder.sender
	if sender == nil && builder.senderFactory != nil {
		sender, err = builder.senderFactory(finalConfig)
		if err != nil {
			return nil, wrapBadInput(err, "core: build sender")
		}
	}
	if sender == nil {
		return nil, NewInternalError("core: sender is required", nil)
	}

	client := &Client{
		config:          finalConfig,
		store:           NewTokenStore(creds),
		authority:       authority,
		sender:          sender,
		recorder:        NewMultiRecorder(builder.recorders...),
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		newID:           builder.idGenerator,
	}

	startedAt := time.Now()
	pair, err := client.store.Authenticate(ctx, client.authority)
	client.observeOperation(ctx, startedAt, OperationAuthenticate, err, tokenFields(pair))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

func (c *Client) Token() TokenPair {
	if c == nil {
		return TokenPair{}
	}
	return c.store.Token()
}

func (c *Client) Dependencies() ClientDependencies {
	if c == nil {
		return ClientDependencies{}
	}
	return ClientDependencies{
		Logger:          c.logger,
		LoggerProvider:  c.loggerProvider,
		MetricsRecorder: c.metricsRecorder,
		TokenAuthority:  c.authority,
		Sender:          c.sender,
		Recorder:        c.recorder,
	}
}

// Refresh forces a refresh of the current token pair.
func (c *Client) Refresh(ctx context.Context) (TokenPair, error) {
	if c == nil {
		return TokenPair{}, NewInternalError("core: client is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	snapshot := c.store.Snapshot()
	pair, _, err := c.store.Refresh(ctx, c.authority, snapshot.Generation)
	c.observeOperation(ctx, startedAt, OperationRefresh, err, tokenFields(pair))
	if err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// SendEvent delivers envelope, refreshing the token and retrying when the
// delivery endpoint answers 401. No refresh happens after the last permitted
// attempt; that final 401 is returned as an outcome, not an error.
func (c *Client) SendEvent(ctx context.Context, envelope Envelope) (DeliveryOutcome, error) {
	if c == nil {
		return DeliveryOutcome{}, NewInternalError("core: client is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if envelope == nil {
		return DeliveryOutcome{}, badInputError("core: envelope is required", nil)
	}

	startedAt := time.Now()
	deliveryID := c.newID()
	schemaRef := strings.TrimSpace(envelope.SchemaRef())
	maxRetries := c.config.MaxRetries
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}

	var outcome DeliveryOutcome
	attempts := 0
	refreshes := 0
	for i := 0; i < maxRetries; i++ {
		attempts++
		snapshot := c.store.Snapshot()
		attemptStartedAt := time.Now()

		response, err := c.sender.Send(ctx, snapshot.Token, envelope)
		attempt := DeliveryAttempt{
			ID:         c.newID(),
			DeliveryID: deliveryID,
			SchemaRef:  schemaRef,
			Attempt:    i + 1,
			StatusCode: response.StatusCode,
			DurationMS: time.Since(attemptStartedAt).Milliseconds(),
			CreatedAt:  time.Now().UTC(),
		}
		if err != nil {
			err = classifySendError(err, "core: send event")
			attempt.Error = err.Error()
			c.recordAttempt(ctx, attempt)
			c.observeOperation(ctx, startedAt, OperationSendEvent, err, deliveryFields(deliveryID, schemaRef, attempts, refreshes, 0))
			return DeliveryOutcome{}, err
		}
		outcome = DeliveryOutcome{
			StatusCode: response.StatusCode,
			Body:       string(response.Body),
		}

		if response.StatusCode != http.StatusUnauthorized || i+1 >= maxRetries {
			c.recordAttempt(ctx, attempt)
			break
		}

		_, refreshed, refreshErr := c.store.Refresh(ctx, c.authority, snapshot.Generation)
		if refreshErr != nil {
			attempt.Error = refreshErr.Error()
			c.recordAttempt(ctx, attempt)
			c.observeOperation(ctx, startedAt, OperationSendEvent, refreshErr, deliveryFields(deliveryID, schemaRef, attempts, refreshes, response.StatusCode))
			return DeliveryOutcome{}, refreshErr
		}
		if refreshed {
			refreshes++
		}
		attempt.Refreshed = refreshed
		c.recordAttempt(ctx, attempt)
	}

	c.observeOperation(ctx, startedAt, OperationSendEvent, nil, deliveryFields(deliveryID, schemaRef, attempts, refreshes, outcome.StatusCode))
	return outcome, nil
}

func (c *Client) recordAttempt(ctx context.Context, attempt DeliveryAttempt) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordAttempt(ctx, attempt); err != nil {
		c.log(ctx, "warn", "delivery attempt not recorded", map[string]any{
			"delivery_id": attempt.DeliveryID,
			"attempt":     attempt.Attempt,
			"error":       err.Error(),
		})
	}
}

func deliveryFields(deliveryID string, schemaRef string, attempts int, refreshes int, statusCode int) map[string]any {
	fields := map[string]any{
		"delivery_id": deliveryID,
		"schema_ref":  schemaRef,
		"attempts":    attempts,
		"refreshes":   refreshes,
	}
	if statusCode > 0 {
		fields["status_code"] = statusCode
	}
	return fields
}

func tokenFields(pair TokenPair) map[string]any {
	fields := map[string]any{}
	if pair.ExpiresAt != nil {
		fields["expires_at"] = pair.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return fields
}
