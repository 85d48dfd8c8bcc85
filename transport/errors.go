package transport

import (
	"context"
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-strm/core"
)

// failure builds the go-errors envelope returned by adapters. source may be nil.
func failure(source error, category goerrors.Category, code int, message string, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(code).WithTextCode(textCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func badRequest(source error, message string, metadata map[string]any) error {
	return failure(source, goerrors.CategoryBadInput, http.StatusBadRequest, message, metadata)
}

// exchangeFailure classifies a failed round trip. Deadline expiry maps to 504
// and is flagged in metadata so callers can tell it apart from a refused
// connection.
func exchangeFailure(source error, message string, metadata map[string]any) error {
	if errors.Is(source, context.DeadlineExceeded) {
		metadata["timeout"] = true
		return failure(source, goerrors.CategoryExternal, http.StatusGatewayTimeout, message, metadata)
	}
	return failure(source, goerrors.CategoryExternal, http.StatusBadGateway, message, metadata)
}

func textCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryExternal:
		return core.ErrorTransportFailed
	default:
		return core.ErrorInternal
	}
}
