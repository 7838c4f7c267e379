package weather

import "github.com/sigenflux/sigenflux/internal/errors"

const (
	ErrServerError    = errors.ErrorCode("weather_server_error")
	ErrSchemaMismatch = errors.ErrorCode("weather_schema_mismatch")
	ErrInvalidConfig  = errors.ErrorCode("weather_invalid_config")
)
