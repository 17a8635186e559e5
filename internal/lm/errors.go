package lm

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Model wraps exactly one of these, so
// callers branch with errors.Is.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrTokenization         = errors.New("tokenization failed")
	ErrEval                 = errors.New("evaluation failed")
	ErrStateSizeMismatch    = errors.New("state size mismatch")
	ErrInvariantViolation   = errors.New("invariant violation")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

var kinds = []error{
	ErrConfiguration,
	ErrTokenization,
	ErrEval,
	ErrStateSizeMismatch,
	ErrInvariantViolation,
	ErrUnsupportedOperation,
}

// Error carries the failing operation, its kind and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("lm: %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("lm: %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind wrapped by err, or nil for foreign errors.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName is a short stable label for err's kind, used for metrics and
// API error codes.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrConfiguration:
		return "configuration"
	case ErrTokenization:
		return "tokenization"
	case ErrEval:
		return "eval"
	case ErrStateSizeMismatch:
		return "state_size_mismatch"
	case ErrInvariantViolation:
		return "invariant_violation"
	case ErrUnsupportedOperation:
		return "unsupported_operation"
	}
	return "internal"
}
