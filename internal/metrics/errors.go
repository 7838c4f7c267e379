package metrics

import "github.com/sigenflux/sigenflux/internal/errors"

const (
	// Configuration errors
	ErrInvalidConfig = errors.ErrorCode("metrics_invalid_config")

	// Batch write errors
	ErrStoreUnreachable = errors.ErrorCode("metrics_store_unreachable")
	ErrSchemaRejected   = errors.ErrorCode("metrics_schema_rejected")
	ErrEmptyBatch       = errors.ErrorCode("metrics_empty_batch")

	// Conversion errors
	ErrBadTimestamp = errors.ErrorCode("metrics_bad_timestamp")
)
