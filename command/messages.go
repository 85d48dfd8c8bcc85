package command

import (
	"strings"

	"github.com/goliatone/go-strm/core"
)

const (
	TypeSendEvent    = "strm.command.event.send"
	TypeRefreshToken = "strm.command.token.refresh"
)

type SendEventMessage struct {
	Envelope core.Envelope
}

func (SendEventMessage) Type() string { return TypeSendEvent }

func (m SendEventMessage) Validate() error {
	if m.Envelope == nil {
		return commandValidationError("envelope", "envelope is required")
	}
	if strings.TrimSpace(m.Envelope.SchemaRef()) == "" {
		return commandValidationError("envelope.schema_ref", "schema ref is required")
	}
	return nil
}

type RefreshTokenMessage struct{}

func (RefreshTokenMessage) Type() string { return TypeRefreshToken }

func (RefreshTokenMessage) Validate() error { return nil }
