package auth

import (
	"time"

	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
)

const (
	tokenPath = "/auth/oauth/token"

	// Base64 of the vendor's public OAuth client id/secret pair, captured
	// from the vendor web client alongside the transformed password.
	clientAuthBasic = "c2lnZW46c2lnZW4="

	requestTimeout = 15 * time.Second
)

// Vendor error codes are not documented; these values were inferred from
// observed behaviour and kept configurable. Any code not listed here is
// treated conservatively as transient.
var (
	defaultInvalidCredentialCodes = []int{26002, 26010}
	defaultInvalidRefreshCodes    = []int{26004, 28000}
)

type Config struct {
	Username            string
	TransformedPassword string
	BaseURL             string

	// ExpirySkew refreshes tokens slightly before their real expiry.
	ExpirySkew time.Duration
	Backoff    common.Backoff

	InvalidCredentialCodes []int
	InvalidRefreshCodes    []int
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Username == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing username")
	}
	if c.TransformedPassword == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing transformed password")
	}
	if c.BaseURL == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing base URL")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.ExpirySkew <= 0 {
		c.ExpirySkew = 5 * time.Minute
	}
	if c.Backoff.InitialInterval <= 0 {
		c.Backoff = common.DefaultBackoff()
	}
	if c.InvalidCredentialCodes == nil {
		c.InvalidCredentialCodes = defaultInvalidCredentialCodes
	}
	if c.InvalidRefreshCodes == nil {
		c.InvalidRefreshCodes = defaultInvalidRefreshCodes
	}
	return c
}
