package chat

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the stable, caller-visible category of a failure
type Kind string

const (
	KindValidation  Kind = "validation_error"
	KindExhausted   Kind = "pool_exhausted"
	KindTimeout     Kind = "timeout"
	KindParse       Kind = "parse_error"
	KindUnavailable Kind = "upstream_unavailable"
	KindCanceled    Kind = "canceled"
	KindInternal    Kind = "internal_error"
)

// Retryable reports whether a caller may retry after backoff
func (k Kind) Retryable() bool {
	switch k {
	case KindExhausted, KindTimeout, KindUnavailable:
		return true
	}
	return false
}

// Error is the structured failure returned by the gateway
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so errors.Is(err, &Error{Kind: KindTimeout}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// ErrorBody is the wire form {error:{kind,message,finish_reason}}
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the kind, a caller-safe message and the outcome
type ErrorDetail struct {
	Kind         Kind         `json:"kind"`
	Message      string       `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Payload renders the caller-facing error body.
// Only parse and timeout errors expose wrapped diagnostics.
func (e *Error) Payload() ErrorBody {
	msg := e.Message
	switch e.Kind {
	case KindParse, KindTimeout:
		if e.Err != nil {
			msg = fmt.Sprintf("%s: %v", e.Message, e.Err)
		}
	case KindInternal:
		msg = "internal error"
	}
	return ErrorBody{Error: ErrorDetail{Kind: e.Kind, Message: msg, FinishReason: e.FinishReason()}}
}

// FinishReason maps the error onto an OpenAI finish reason
func (e *Error) FinishReason() FinishReason {
	if e.Kind == KindTimeout {
		return FinishTimeout
	}
	return FinishError
}

// FinishReasonFor maps any error onto a finish reason; nil means stop
func FinishReasonFor(err error) FinishReason {
	if err == nil {
		return FinishStop
	}
	return AsError(err).FinishReason()
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Validation reports a malformed request. msg must not contain request data.
func Validation(msg string) *Error { return newError(KindValidation, msg, nil) }

// Exhausted reports that no session became available in time
func Exhausted(msg string, err error) *Error { return newError(KindExhausted, msg, err) }

// Timeout reports an exceeded interaction or request deadline
func Timeout(msg string, err error) *Error { return newError(KindTimeout, msg, err) }

// Parse reports site output that could not be understood
func Parse(msg string, err error) *Error { return newError(KindParse, msg, err) }

// Unavailable reports that the site cannot be reached or warmed up
func Unavailable(msg string, err error) *Error { return newError(KindUnavailable, msg, err) }

// Canceled reports a request abandoned by its caller
func Canceled(err error) *Error { return newError(KindCanceled, "request canceled", err) }

// Internal wraps an unexpected failure
func Internal(err error) *Error { return newError(KindInternal, "unexpected failure", err) }

// AsError extracts a *Error from err, classifying bare context errors
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout("deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return Canceled(err)
	}
	return Internal(err)
}

// KindOf returns the kind of err, or "" for nil
func KindOf(err error) Kind {
	if e := AsError(err); e != nil {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err classifies as kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
