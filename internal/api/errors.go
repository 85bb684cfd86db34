package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/samcharles93/convtune/internal/conv"
	"github.com/samcharles93/convtune/internal/convdb"
	"github.com/samcharles93/convtune/internal/direct"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps engine errors to an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, conv.ErrBadParameter):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, conv.ErrUnsupported):
		return http.StatusUnprocessableEntity, "unsupported_error"
	case errors.Is(err, conv.ErrMalformedConfig), errors.Is(err, direct.ErrInvalidTiling):
		return http.StatusUnprocessableEntity, "malformed_config_error"
	case errors.Is(err, convdb.ErrPersistence):
		return http.StatusInternalServerError, "persistence_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}
