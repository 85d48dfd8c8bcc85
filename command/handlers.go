package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-strm/core"
)

type EventSender interface {
	SendEvent(ctx context.Context, envelope core.Envelope) (core.DeliveryOutcome, error)
}

type TokenRefresher interface {
	Refresh(ctx context.Context) (core.TokenPair, error)
}

type SendEventCommand struct {
	sender EventSender
}

func NewSendEventCommand(sender EventSender) *SendEventCommand {
	return &SendEventCommand{sender: sender}
}

// Execute stores the DeliveryOutcome in the result collector carried by ctx,
// if any. A final 401 is an outcome, not an error.
func (c *SendEventCommand) Execute(ctx context.Context, msg SendEventMessage) error {
	if c == nil || c.sender == nil {
		return commandDependencyError("command: event sender is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.sender.SendEvent(ctx, msg.Envelope)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshTokenCommand struct {
	refresher TokenRefresher
}

func NewRefreshTokenCommand(refresher TokenRefresher) *RefreshTokenCommand {
	return &RefreshTokenCommand{refresher: refresher}
}

func (c *RefreshTokenCommand) Execute(ctx context.Context, _ RefreshTokenMessage) error {
	if c == nil || c.refresher == nil {
		return commandDependencyError("command: token refresher is required")
	}
	out, err := c.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
