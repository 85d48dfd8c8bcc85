package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-strm/core"
)

var _ gocmd.Querier[ListDeliveryAttemptsMessage, core.DeliveryAttemptPage] = (*ListDeliveryAttemptsQuery)(nil)
