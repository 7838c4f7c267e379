package common_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
)

var errTransient = errors.New().WithMessage(errors.ErrNetworkTimeout, "transient")
var errTerminal = errors.New().WithMessage(errors.ErrInternal, "terminal")

func fastBackoff() common.Backoff {
	return common.Backoff{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func always(error) bool { return true }

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := common.Retry(context.Background(), fastBackoff(), always, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryRecoversFromTransientFailures(t *testing.T) {
	calls := 0
	err := common.Retry(context.Background(), fastBackoff(), always, func() error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	err := common.Retry(context.Background(), fastBackoff(), always, func() error {
		calls++
		return errTransient
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls, "initial attempt plus MaxRetries")
}

func TestRetryStopsOnTerminalError(t *testing.T) {
	calls := 0
	retryable := func(err error) bool { return errors.HasCode(err, errors.ErrNetworkTimeout) }

	err := common.Retry(context.Background(), fastBackoff(), retryable, func() error {
		calls++
		return errTerminal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := common.Retry(ctx, common.Backoff{MaxRetries: 10, InitialInterval: time.Hour}, always, func() error {
		calls++
		cancel()
		return errTransient
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation interrupts the backoff sleep")
}
