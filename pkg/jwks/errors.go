package jwks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrRateLimitExceeded is returned when a fetch of the JWKS endpoint was
// suppressed because the configured number of requests per minute was
// already reached. The request is not queued or retried.
var ErrRateLimitExceeded = errors.New("too many requests to the JWKS endpoint")

// SigningKeyNotFoundError is returned when neither the caches nor a
// well-formed JWKS document hold the requested kid.
type SigningKeyNotFoundError struct {
	KID string
}

func (e *SigningKeyNotFoundError) Error() string {
	return fmt.Sprintf("unable to find a signing key that matches %q", e.KID)
}

// TransportError is returned when the JWKS endpoint could not be reached or
// answered with a non-2xx status. It is never cached.
type TransportError struct {
	URI string
	// Code is the network error code of the failure, e.g. ENOTFOUND when the
	// host name could not be resolved. Empty when the server answered.
	Code string
	// StatusCode is the HTTP status of the response, or 0 when there was no
	// response.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("failed to fetch keys from %s: %s: %s", e.URI, e.Code, e.Err)
	}
	return fmt.Sprintf("failed to fetch keys from %s: %s", e.URI, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError is returned when the JWKS endpoint answered with a body that is
// not a JWKS document.
type ParseError struct {
	URI string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse JWKs response from %s: %s", e.URI, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// networkErrorCode maps a failed HTTP round trip to the conventional errno
// style code of its cause.
func networkErrorCode(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout || dnsErr.IsTemporary {
			return "EAI_AGAIN"
		}
		return "ENOTFOUND"
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.ECONNRESET):
		return "ECONNRESET"
	case errors.Is(err, syscall.EHOSTUNREACH):
		return "EHOSTUNREACH"
	case errors.Is(err, syscall.ENETUNREACH):
		return "ENETUNREACH"
	case errors.Is(err, context.Canceled):
		return "ECANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}

	return ""
}
