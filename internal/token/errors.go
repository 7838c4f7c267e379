package token

import "github.com/sigenflux/sigenflux/internal/errors"

const (
	ErrFileRead  = errors.ErrorCode("token_file_read_failed")
	ErrFileWrite = errors.ErrorCode("token_file_write_failed")
	ErrFileLock  = errors.ErrorCode("token_file_lock_failed")
)
