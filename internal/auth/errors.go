package auth

import "github.com/sigenflux/sigenflux/internal/errors"

const (
	// Terminal errors. Retrying with a known-bad secret wastes vendor quota
	// and risks account lockout, so these are never retried.
	ErrInvalidTransform = errors.ErrorCode("auth_invalid_transform")
	ErrInvalidRefresh   = errors.ErrorCode("auth_invalid_refresh")

	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("auth_invalid_config")

	// Wire errors
	ErrVendorRejected = errors.ErrorCode("auth_vendor_rejected")
	ErrSchemaMismatch = errors.ErrorCode("auth_schema_mismatch")
)
