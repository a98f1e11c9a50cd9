package jwks

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "host not found", err: &net.DNSError{Err: "no such host", Name: "example", IsNotFound: true}, want: "ENOTFOUND"},
		{name: "temporary DNS failure", err: &net.DNSError{Err: "server misbehaving", Name: "example", IsTemporary: true}, want: "EAI_AGAIN"},
		{name: "connection refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, want: "ECONNREFUSED"},
		{name: "connection reset", err: fmt.Errorf("read: %w", syscall.ECONNRESET), want: "ECONNRESET"},
		{name: "deadline", err: fmt.Errorf("Get: %w", context.DeadlineExceeded), want: "ETIMEDOUT"},
		{name: "canceled", err: fmt.Errorf("Get: %w", context.Canceled), want: "ECANCELED"},
		{name: "unknown", err: errors.New("something else"), want: ""},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.want, networkErrorCode(test.err))
		})
	}
}

func TestTransportError(t *testing.T) {
	cause := &net.DNSError{Err: "no such host", Name: "my-authz-server", IsNotFound: true}
	err := error(&TransportError{URI: "http://my-authz-server/jwks", Code: "ENOTFOUND", Err: cause})

	assert.EqualError(t, err, "failed to fetch keys from http://my-authz-server/jwks: ENOTFOUND: lookup my-authz-server: no such host")
	var dnsErr *net.DNSError
	assert.ErrorAs(t, err, &dnsErr)

	err = &TransportError{URI: "http://my-authz-server/jwks", StatusCode: 500, Err: errors.New("unexpected status code 500: boom")}
	assert.EqualError(t, err, "failed to fetch keys from http://my-authz-server/jwks: unexpected status code 500: boom")
}

func TestParseError(t *testing.T) {
	cause := errors.New(`missing "keys" field`)
	err := error(&ParseError{URI: "http://my-authz-server/jwks", Err: cause})

	assert.EqualError(t, err, `failed to parse JWKs response from http://my-authz-server/jwks: missing "keys" field`)
	assert.ErrorIs(t, err, cause)
}
