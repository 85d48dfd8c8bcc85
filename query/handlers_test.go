package query

import (
	"context"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-strm/core"
)

type stubAttemptReader struct {
	listFn func(ctx context.Context, filter core.DeliveryAttemptFilter) (core.DeliveryAttemptPage, error)
}

func (s stubAttemptReader) List(ctx context.Context, filter core.DeliveryAttemptFilter) (core.DeliveryAttemptPage, error) {
	return s.listFn(ctx, filter)
}

func TestListDeliveryAttemptsQuery_DelegatesFilter(t *testing.T) {
	qry := NewListDeliveryAttemptsQuery(stubAttemptReader{
		listFn: func(_ context.Context, filter core.DeliveryAttemptFilter) (core.DeliveryAttemptPage, error) {
			if filter.SchemaRef != "strmprivacy/demo/1.0.2" || filter.StatusCode != 401 {
				t.Fatalf("unexpected filter: %#v", filter)
			}
			return core.DeliveryAttemptPage{
				Items: []core.DeliveryAttempt{{DeliveryID: "d1", Attempt: 1, StatusCode: 401}},
				Total: 1,
			}, nil
		},
	})
	page, err := qry.Query(context.Background(), ListDeliveryAttemptsMessage{Filter: core.DeliveryAttemptFilter{
		SchemaRef:  "strmprivacy/demo/1.0.2",
		StatusCode: 401,
	}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if page.Total != 1 || page.Items[0].DeliveryID != "d1" {
		t.Fatalf("unexpected page: %#v", page)
	}
}

func TestListDeliveryAttemptsMessage_ValidateReturnsRichError(t *testing.T) {
	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cases := map[string]ListDeliveryAttemptsMessage{
		"negative page":  {Filter: core.DeliveryAttemptFilter{Page: -1}},
		"large per page": {Filter: core.DeliveryAttemptFilter{PerPage: 1000}},
		"inverted range": {Filter: core.DeliveryAttemptFilter{From: &from, To: &to}},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			err := msg.Validate()
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			if rich.TextCode != core.ErrorBadInput {
				t.Fatalf("expected %q text code, got %q", core.ErrorBadInput, rich.TextCode)
			}
		})
	}
}

func TestListDeliveryAttemptsQuery_NilReaderReturnsRichError(t *testing.T) {
	_, err := NewListDeliveryAttemptsQuery(nil).Query(context.Background(), ListDeliveryAttemptsMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
