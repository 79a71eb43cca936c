package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

type Kind string

const (
	KindNotFound  Kind = "NOT_FOUND"
	KindTooLarge  Kind = "TOO_LARGE"
	KindTimeout   Kind = "TIMEOUT"
	KindTransport Kind = "TRANSPORT"
)

// FetchError is the only error type Fetch returns.
type FetchError struct {
	Kind   Kind
	Ref    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.Ref, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Ref, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed. Client errors other
// than 408 and 429 are final even though they surface as TRANSPORT.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case KindTimeout:
		return true
	case KindTransport:
		if e.Status >= 400 && e.Status < 500 {
			return e.Status == http.StatusRequestTimeout || e.Status == http.StatusTooManyRequests
		}
		return true
	default:
		return false
	}
}

func statusError(ref string, status int) *FetchError {
	kind := KindTransport
	switch status {
	case http.StatusNotFound, http.StatusGone, http.StatusBadRequest:
		kind = KindNotFound
	case http.StatusRequestEntityTooLarge:
		kind = KindTooLarge
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, Ref: ref, Status: status, Err: fmt.Errorf("unexpected status %s", http.StatusText(status))}
}

func transportError(ref string, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	kind := KindTransport
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, Ref: ref, Err: err}
}
