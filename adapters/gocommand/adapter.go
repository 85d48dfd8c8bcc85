package gocommand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	strmcommand "github.com/goliatone/go-strm/command"
	"github.com/goliatone/go-strm/core"
	strmquery "github.com/goliatone/go-strm/query"
)

// QueueResolverKey names the resolver that mirrors registered commands into a
// go-job queue registry.
const QueueResolverKey = "queue"

var errRegistryNotConfigured = errors.New("gocommand: registry is not configured")

// ValidateMessageContract checks that msg has a non-empty Type() and, when it
// defines Validate(), that validation passes.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	typed, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(typed.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// RegistryAdapter guards a go-command registry shared by the strm handlers.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

// Register adds a command or query handler. Queries share the command
// registry in go-command.
func (a *RegistryAdapter) Register(handler any) error {
	if a == nil || a.registry == nil {
		return errRegistryNotConfigured
	}
	if handler == nil {
		return fmt.Errorf("gocommand: handler is required")
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return errRegistryNotConfigured
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	return a != nil && a.registry != nil && a.registry.HasResolver(strings.TrimSpace(key))
}

// AddQueueResolver mirrors every command into queueRegistry on Initialize so
// it can be executed from a go-job worker.
func (a *RegistryAdapter) AddQueueResolver(queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(QueueResolverKey, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return errRegistryNotConfigured
	}
	return a.registry.Initialize()
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

// RegisterAndSubscribe subscribes cmd on the dispatcher and registers it. The
// subscription is dropped again if registration fails.
func RegisterAndSubscribe[T any](adapter *RegistryAdapter, cmd command.Commander[T], opts ...runner.Option) (commanddispatcher.Subscription, error) {
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	return subscribeRegistered(adapter, cmd, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeCommand(cmd, opts...)
	})
}

func RegisterAndSubscribeQuery[T any, R any](adapter *RegistryAdapter, qry command.Querier[T, R], opts ...runner.Option) (commanddispatcher.Subscription, error) {
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	return subscribeRegistered(adapter, qry, func() commanddispatcher.Subscription {
		return commanddispatcher.SubscribeQuery(qry, opts...)
	})
}

func subscribeRegistered(adapter *RegistryAdapter, handler any, subscribe func() commanddispatcher.Subscription) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, errRegistryNotConfigured
	}
	subscription := subscribe()
	if err := adapter.Register(handler); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// ClientHandlers groups the collaborators behind the strm command and query
// handlers. Reader may be nil when no attempt store is configured. When
// QueueRegistry is set the commands are also mirrored into it on Initialize.
type ClientHandlers struct {
	Sender        strmcommand.EventSender
	Refresher     strmcommand.TokenRefresher
	Reader        core.DeliveryAttemptReader
	QueueRegistry *jobqueuecommand.Registry
}

// Subscriptions is the set returned by RegisterClientHandlers.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterClientHandlers registers and subscribes the send, refresh and list
// handlers. On failure every subscription made so far is removed.
func RegisterClientHandlers(adapter *RegistryAdapter, handlers ClientHandlers, opts ...runner.Option) (Subscriptions, error) {
	if handlers.Sender == nil || handlers.Refresher == nil {
		return nil, fmt.Errorf("gocommand: sender and refresher are required")
	}
	if handlers.QueueRegistry != nil && !adapter.HasResolver(QueueResolverKey) {
		if err := adapter.AddQueueResolver(handlers.QueueRegistry); err != nil {
			return nil, err
		}
	}

	var subscriptions Subscriptions
	steps := []func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[strmcommand.SendEventMessage](adapter, strmcommand.NewSendEventCommand(handlers.Sender), opts...)
		},
		func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribe[strmcommand.RefreshTokenMessage](adapter, strmcommand.NewRefreshTokenCommand(handlers.Refresher), opts...)
		},
	}
	if handlers.Reader != nil {
		steps = append(steps, func() (commanddispatcher.Subscription, error) {
			return RegisterAndSubscribeQuery[strmquery.ListDeliveryAttemptsMessage, core.DeliveryAttemptPage](
				adapter, strmquery.NewListDeliveryAttemptsQuery(handlers.Reader), opts...)
		})
	}
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			subscriptions.Unsubscribe()
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, nil
}
