package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/rollout/internal/inference"
	"github.com/samcharles93/rollout/internal/lm"
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

// statusFor maps an engine error to an HTTP status and OpenAI error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, lm.ErrConfiguration),
		errors.Is(err, lm.ErrUnsupportedOperation):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, lm.ErrStateSizeMismatch):
		return http.StatusConflict, "conflict_error"
	case errors.Is(err, inference.ErrClosed):
		return http.StatusServiceUnavailable, "server_error"
	}
	return http.StatusInternalServerError, "server_error"
}
