package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

var (
	// ErrBadURL is returned when a candidate URL cannot form a request.
	ErrBadURL = errors.New("transport: bad url")
	// ErrNotFound is returned for a 404 response. It is never retried.
	ErrNotFound = errors.New("transport: not found")
	// ErrInternalServerError is returned for a 500 response.
	ErrInternalServerError = errors.New("transport: internal server error")
	// ErrUnknownServerError matches every *StatusError.
	ErrUnknownServerError = errors.New("transport: unknown server error")
	// ErrInvalidResponse is returned when a 2xx body does not decode.
	ErrInvalidResponse = errors.New("transport: invalid response")
	// ErrEncode is returned when the request body cannot be encoded.
	ErrEncode = errors.New("transport: encode request body")
)

// StatusError reports a non-2xx status other than 404 and 500. A status of
// -1 means no request produced a recordable error.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: unknown server error (status %d)", e.StatusCode)
}

// Is lets errors.Is(err, ErrUnknownServerError) match any status.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnknownServerError
}

// IsRetryable reports whether err warrants trying the next URL and, after
// every URL failed, another attempt. Server errors (500 and unrecognized
// statuses), timeouts, dropped connections and refused connections are
// retryable. Everything else, including 404 and decode failures, is not.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidResponse),
		errors.Is(err, ErrBadURL), errors.Is(err, ErrEncode):
		return false
	case errors.Is(err, ErrInternalServerError), errors.Is(err, ErrUnknownServerError):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.EPIPE):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	return false
}
