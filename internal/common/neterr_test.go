package common_test

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestNetworkErrorCode(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "api.example.com", IsNotFound: true}
	assert.Equal(t, errors.ErrNetworkDNS, common.NetworkErrorCode(dnsErr))

	assert.Equal(t, errors.ErrNetworkTimeout, common.NetworkErrorCode(timeoutError{}))
	assert.Equal(t, errors.ErrNetworkTimeout, common.NetworkErrorCode(context.DeadlineExceeded))

	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("connection refused")}
	assert.Equal(t, errors.ErrNetworkUnreachable, common.NetworkErrorCode(opErr))

	assert.Equal(t, errors.ErrorCode(""), common.NetworkErrorCode(fmt.Errorf("not a network problem")))
	assert.Equal(t, errors.ErrorCode(""), common.NetworkErrorCode(nil))
}

func TestNetworkErrorCodeWrapped(t *testing.T) {
	wrapped := fmt.Errorf("fetch failed: %w", &net.DNSError{Err: "no such host"})
	assert.Equal(t, errors.ErrNetworkDNS, common.NetworkErrorCode(wrapped))
	assert.True(t, common.IsNetworkError(wrapped))
}
