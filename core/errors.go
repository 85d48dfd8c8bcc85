package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorAuthFailed      = "STRM_AUTH_FAILED"
	ErrorTransportFailed = "STRM_TRANSPORT_FAILED"
	ErrorEncodingFailed  = "STRM_ENCODING_FAILED"
	ErrorBadInput        = "STRM_BAD_INPUT"
	ErrorInternal        = "STRM_INTERNAL"
	ErrorRateLimited     = "STRM_RATE_LIMITED"
)

// NewAuthError reports an identity endpoint failure. statusCode is the HTTP
// status returned by the endpoint, or zero when no response was received.
// A 2xx or 4xx answer means the endpoint refused or could not issue a usable
// pair and is filed under the auth category; anything else is external.
func NewAuthError(source error, message string, statusCode int, metadata map[string]any) *goerrors.Error {
	category := goerrors.CategoryExternal
	code := http.StatusBadGateway
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices ||
		statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError {
		category = goerrors.CategoryAuth
		code = http.StatusUnauthorized
	}
	return buildError(source, message, category, code, ErrorAuthFailed, withStatus(metadata, statusCode))
}

func NewTransportError(source error, message string, metadata map[string]any) *goerrors.Error {
	return buildError(source, message, goerrors.CategoryExternal, http.StatusBadGateway, ErrorTransportFailed, metadata)
}

func NewEncodingError(source error, message string, metadata map[string]any) *goerrors.Error {
	return buildError(source, message, goerrors.CategoryValidation, http.StatusUnprocessableEntity, ErrorEncodingFailed, metadata)
}

func NewBadInputError(message string, metadata map[string]any) *goerrors.Error {
	return badInputError(message, metadata)
}

func NewInternalError(message string, metadata map[string]any) *goerrors.Error {
	return buildError(nil, message, goerrors.CategoryInternal, http.StatusInternalServerError, ErrorInternal, metadata)
}

func NewRateLimitedError(source error, message string, metadata map[string]any) *goerrors.Error {
	return buildError(source, message, goerrors.CategoryRateLimit, http.StatusTooManyRequests, ErrorRateLimited, metadata)
}

func IsAuthError(err error) bool {
	return hasTextCode(err, ErrorAuthFailed)
}

func IsTransportError(err error) bool {
	return hasTextCode(err, ErrorTransportFailed)
}

func IsEncodingError(err error) bool {
	return hasTextCode(err, ErrorEncodingFailed)
}

func IsBadInputError(err error) bool {
	return hasTextCode(err, ErrorBadInput)
}

func IsRateLimitedError(err error) bool {
	return hasTextCode(err, ErrorRateLimited)
}

// IsRefreshRejected reports an auth failure where the identity endpoint
// answered but refused the grant, as opposed to an unreachable or failing
// endpoint.
func IsRefreshRejected(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || strings.TrimSpace(rich.TextCode) != ErrorAuthFailed {
		return false
	}
	return rich.Category == goerrors.CategoryAuth
}

func badInputError(message string, metadata map[string]any) *goerrors.Error {
	return buildError(nil, message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorBadInput, metadata)
}

func buildError(
	source error,
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(code).WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func hasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return strings.TrimSpace(rich.TextCode) == textCode
}

// classifyAuthError keeps rich errors from a TokenAuthority as they are and
// files anything else under the auth failure code.
func classifyAuthError(err error, message string) error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && strings.TrimSpace(rich.TextCode) != "" {
		return err
	}
	return NewAuthError(err, message, 0, nil)
}

// classifySendError keeps rich errors from a Sender as they are and files
// anything else under the transport failure code.
func classifySendError(err error, message string) error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && strings.TrimSpace(rich.TextCode) != "" {
		return err
	}
	return NewTransportError(err, message, nil)
}

func withStatus(metadata map[string]any, statusCode int) map[string]any {
	if statusCode <= 0 {
		return metadata
	}
	out := copyAnyMap(metadata)
	out["status_code"] = statusCode
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func wrapBadInput(err error, message string) error {
	if err == nil {
		return nil
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && strings.TrimSpace(rich.TextCode) != "" {
		return err
	}
	return buildError(err, message, goerrors.CategoryBadInput, http.StatusBadRequest, ErrorBadInput, nil)
}
