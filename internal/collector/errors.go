package collector

import "github.com/sigenflux/sigenflux/internal/errors"

const (
	// Cycle-level errors
	ErrAuthFailed     = errors.ErrorCode("cycle_auth_failed")
	ErrAllSourcesDown = errors.ErrorCode("cycle_all_sources_failed")
	ErrPersistFailed  = errors.ErrorCode("cycle_persist_failed")

	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("cycle_invalid_config")
)
