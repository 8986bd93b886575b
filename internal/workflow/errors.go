package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"pdfmaster/internal/backend"
)

var (
	ErrBusy     = errors.New("a request is already in flight")
	ErrNoFiles  = errors.New("no files selected")
	ErrNotReady = errors.New("workflow must be reset first")
	ErrNoResult = errors.New("no result available")
	ErrClosed   = errors.New("workflow closed")
)

// ErrorKind classifies a failed submission.
type ErrorKind string

const (
	KindTransport  ErrorKind = "transport"
	KindTimeout    ErrorKind = "timeout"
	KindCanceled   ErrorKind = "canceled"
	KindUnexpected ErrorKind = "unexpected"
)

const fallbackMessage = "Something went wrong"

// Error is the terminal failure of a submission. Message is user-visible text.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, message string, cause error) *Error {
	if message == "" {
		message = fallbackMessage
	}
	return &Error{Kind: kind, Message: message, Err: cause}
}

func timeoutError(limit time.Duration) *Error {
	return newError(KindTimeout, fmt.Sprintf("request timed out after %s", limit), context.DeadlineExceeded)
}

func canceledError() *Error {
	return newError(KindCanceled, "request canceled", context.Canceled)
}

// classify maps an error from the request path onto an ErrorKind.
func classify(ctx context.Context, err error, limit time.Duration) *Error {
	var statusErr *backend.StatusError
	var urlErr *url.Error
	switch {
	case errors.As(err, &statusErr):
		return newError(KindTransport, statusErr.Message, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return timeoutError(limit)
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		return canceledError()
	case errors.As(err, &urlErr):
		return newError(KindTransport, urlErr.Err.Error(), err)
	default:
		return newError(KindUnexpected, err.Error(), err)
	}
}
