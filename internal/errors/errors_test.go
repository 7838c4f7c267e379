package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sigenflux/sigenflux/internal/errors"
)

func TestHasCodeWalksWrapChain(t *testing.T) {
	errFactory := errors.New()

	inner := errFactory.New(errors.ErrNetworkTimeout)
	outer := errFactory.Wrap(errors.ErrMainLoop, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrMainLoop))
	assert.True(t, errors.HasCode(outer, errors.ErrNetworkTimeout))
	assert.False(t, errors.HasCode(outer, errors.ErrInvalidConfig))
	assert.False(t, errors.HasCode(nil, errors.ErrMainLoop))
}

func TestHasCodeThroughStdErrors(t *testing.T) {
	errFactory := errors.New()

	inner := errFactory.New(errors.ErrNetworkDNS)
	wrapped := fmt.Errorf("fetch failed: %w", inner)

	assert.True(t, errors.HasCode(wrapped, errors.ErrNetworkDNS))
}

func TestCodeOf(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.WithMessage(errors.ErrInvalidConfig, "bad latitude")
	assert.Equal(t, errors.ErrInvalidConfig, errors.CodeOf(err))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(fmt.Errorf("plain")))
}

func TestErrorMessageFallsBackToCode(t *testing.T) {
	errFactory := errors.New()

	known := errFactory.New(errors.ErrInvalidConfig)
	assert.Equal(t, "Invalid configuration", known.Error())

	custom := errFactory.New(errors.ErrorCode("some_domain_code"))
	assert.Equal(t, "some_domain_code", custom.Error())
}

func TestWithDataIncludedInMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.WithData(errors.ErrMissingConfig, []string{"username"})
	assert.Contains(t, err.Error(), "username")
	assert.Equal(t, []string{"username"}, err.GetData())
}
