package query

import (
	"github.com/goliatone/go-strm/core"
)

const (
	TypeListDeliveryAttempts = "strm.query.delivery_attempts.list"

	maxAttemptsPerPage = 500
)

type ListDeliveryAttemptsMessage struct {
	Filter core.DeliveryAttemptFilter
}

func (ListDeliveryAttemptsMessage) Type() string { return TypeListDeliveryAttempts }

func (m ListDeliveryAttemptsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be positive")
	}
	if m.Filter.PerPage < 0 || m.Filter.PerPage > maxAttemptsPerPage {
		return queryValidationError("per_page", "per_page must be between 1 and 500")
	}
	if m.Filter.StatusCode < 0 {
		return queryValidationError("status_code", "status_code must be positive")
	}
	if m.Filter.From != nil && m.Filter.To != nil && m.Filter.From.After(*m.Filter.To) {
		return queryValidationError("from", "from must not be after to")
	}
	return nil
}
