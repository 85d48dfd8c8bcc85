package strm

import (
	"context"
	"fmt"

	strmcommand "github.com/goliatone/go-strm/command"
	"github.com/goliatone/go-strm/core"
	strmquery "github.com/goliatone/go-strm/query"
)

type ClientService interface {
	SendEvent(ctx context.Context, envelope core.Envelope) (core.DeliveryOutcome, error)
	Refresh(ctx context.Context) (core.TokenPair, error)
}

type Commands struct {
	SendEvent    *strmcommand.SendEventCommand
	RefreshToken *strmcommand.RefreshTokenCommand
}

type Queries struct {
	ListDeliveryAttempts *strmquery.ListDeliveryAttemptsQuery
}

type Facade struct {
	service  ClientService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	attemptReader core.DeliveryAttemptReader
}

func WithAttemptReader(reader core.DeliveryAttemptReader) FacadeOption {
	return func(options *facadeOptions) {
		options.attemptReader = reader
	}
}

func NewFacade(service ClientService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("strm: client service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.attemptReader
	if reader == nil {
		reader = resolveAttemptReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		SendEvent:    strmcommand.NewSendEventCommand(service),
		RefreshToken: strmcommand.NewRefreshTokenCommand(service),
	}
	facade.queries = Queries{
		ListDeliveryAttempts: strmquery.NewListDeliveryAttemptsQuery(reader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() ClientService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveAttemptReader finds a reader among the client's delivery recorders.
func resolveAttemptReader(service ClientService) core.DeliveryAttemptReader {
	if reader, ok := service.(core.DeliveryAttemptReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		Dependencies() core.ClientDependencies
	})
	if !ok {
		return nil
	}
	return findAttemptReader(provider.Dependencies().Recorder)
}

func findAttemptReader(recorder core.DeliveryRecorder) core.DeliveryAttemptReader {
	switch typed := recorder.(type) {
	case nil:
		return nil
	case core.DeliveryAttemptReader:
		return typed
	case *core.MultiRecorder:
		for _, candidate := range typed.Recorders() {
			if reader := findAttemptReader(candidate); reader != nil {
				return reader
			}
		}
	}
	return nil
}
