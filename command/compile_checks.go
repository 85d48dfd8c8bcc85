package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SendEventMessage]    = (*SendEventCommand)(nil)
	_ gocmd.Commander[RefreshTokenMessage] = (*RefreshTokenCommand)(nil)
)
