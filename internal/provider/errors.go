package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// ProviderError is a failed dialer hand-off. Transient failures leave the follow-up
// eligible for the next scan; permanent ones are logged and dropped.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}

	msg := fmt.Sprintf("dialer %s error", kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// requestError wraps a transport failure. A cancelled context is the worker
// shutting down, not the dialer failing, so it stays permanent and is not released.
func requestError(err error) *ProviderError {
	return &ProviderError{
		Message:   "dialer request failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}

// statusError wraps a non-2xx dialer answer; 429 and 5xx are worth another scan.
func statusError(statusCode int, body string) *ProviderError {
	msg := fmt.Sprintf("status %d", statusCode)
	if body != "" {
		msg += " " + body
	}
	return &ProviderError{
		StatusCode: statusCode,
		Message:    msg,
		Transient:  statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError,
	}
}

// IsTransient reports whether the reminder is worth sending again later.
func IsTransient(err error) bool {
	var providerErr *ProviderError
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.As(err, &providerErr):
		return providerErr.Transient
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
