package common

import (
	"context"
	"net"

	"github.com/sigenflux/sigenflux/internal/errors"
)

// NetworkErrorCode classifies a transport-level error into the network error
// taxonomy. Returns an empty code for errors that are not network failures.
func NetworkErrorCode(err error) errors.ErrorCode {
	if err == nil {
		return ""
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return errors.ErrNetworkDNS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.ErrNetworkTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.ErrNetworkTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.ErrNetworkUnreachable
	}

	return ""
}

// IsNetworkError reports whether err is a transport-level failure that is
// safe to retry.
func IsNetworkError(err error) bool {
	return NetworkErrorCode(err) != ""
}
