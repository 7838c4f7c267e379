package sigen

import "github.com/sigenflux/sigenflux/internal/errors"

const (
	ErrNotFound       = errors.ErrorCode("api_not_found")
	ErrUnauthorized   = errors.ErrorCode("api_unauthorized")
	ErrServerError    = errors.ErrorCode("api_server_error")
	ErrSchemaMismatch = errors.ErrorCode("api_schema_mismatch")
	ErrCircuitOpen    = errors.ErrorCode("api_circuit_open")
	ErrInvalidConfig  = errors.ErrorCode("api_invalid_config")
)
