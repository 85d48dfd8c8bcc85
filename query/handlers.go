package query

import (
	"context"

	"github.com/goliatone/go-strm/core"
)

type ListDeliveryAttemptsQuery struct {
	reader core.DeliveryAttemptReader
}

func NewListDeliveryAttemptsQuery(reader core.DeliveryAttemptReader) *ListDeliveryAttemptsQuery {
	return &ListDeliveryAttemptsQuery{reader: reader}
}

func (q *ListDeliveryAttemptsQuery) Query(ctx context.Context, msg ListDeliveryAttemptsMessage) (core.DeliveryAttemptPage, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryAttemptPage{}, queryDependencyError("query: delivery attempt reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.DeliveryAttemptPage{}, err
	}
	return q.reader.List(ctx, msg.Filter)
}
