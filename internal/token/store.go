package token

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sigenflux/sigenflux/internal/errors"
)

const (
	tokenFilePerm = 0o600
	dirPerm       = 0o700

	// DefaultExpirySkew treats a token as expired slightly before the vendor
	// does, so a call in flight never crosses the real expiry.
	DefaultExpirySkew = 5 * time.Minute
)

// Record is the persisted bearer/refresh token pair.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the record must not be used at the given time.
func (r Record) Expired(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(r.ExpiresAt)
}

// Store owns the durable token file. No other component touches it directly.
type Store struct {
	path   string
	lockFd int
}

func NewStore(path string) *Store {
	return &Store{path: path, lockFd: -1}
}

// Load reads the persisted record. The second return value is false when no
// record exists yet. Unreadable or corrupt content is an error distinct from
// absence so the caller knows to re-authenticate from scratch.
func (s *Store) Load() (Record, bool, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, false, nil
		}
		return Record{}, false, errFactory.Wrap(ErrFileRead, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, errFactory.Wrap(ErrFileRead, err)
	}
	if rec.AccessToken == "" {
		return Record{}, false, errFactory.WithMessage(ErrFileRead, "token file missing access_token")
	}

	return rec, true, nil
}

// Save atomically replaces the token file with owner-only permissions. A
// crash mid-save leaves either the previous record or the new one, never a
// partial write.
func (s *Store) Save(rec Record) error {
	errFactory := errors.New()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errFactory.Wrap(ErrFileWrite, err)
	}

	tmp, err := os.CreateTemp(dir, ".sigen_token-*")
	if err != nil {
		return errFactory.Wrap(ErrFileWrite, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(tokenFilePerm); err != nil {
		tmp.Close()
		return errFactory.Wrap(ErrFileWrite, err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		tmp.Close()
		return errFactory.Wrap(ErrFileWrite, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errFactory.Wrap(ErrFileWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errFactory.Wrap(ErrFileWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return errFactory.Wrap(ErrFileWrite, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errFactory.Wrap(ErrFileWrite, err)
	}

	return nil
}

// Lock takes an exclusive advisory lock scoped to the token file so
// overlapping agent invocations cannot race two refreshes against the same
// refresh token. It blocks until the lock is held or ctx is done.
func (s *Store) Lock(ctx context.Context) error {
	errFactory := errors.New()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return errFactory.Wrap(ErrFileLock, err)
	}

	fd, err := syscall.Open(s.path+".lock", syscall.O_CREAT|syscall.O_RDWR, tokenFilePerm)
	if err != nil {
		return errFactory.Wrap(ErrFileLock, err)
	}

	locked := make(chan error, 1)
	go func() {
		locked <- syscall.Flock(fd, syscall.LOCK_EX)
	}()

	select {
	case err := <-locked:
		if err != nil {
			syscall.Close(fd)
			return errFactory.Wrap(ErrFileLock, err)
		}
		s.lockFd = fd
		return nil
	case <-ctx.Done():
		// The flock may still complete; release it as soon as it does.
		go func() {
			if err := <-locked; err == nil {
				syscall.Flock(fd, syscall.LOCK_UN)
			}
			syscall.Close(fd)
		}()
		return errFactory.Wrap(ErrFileLock, ctx.Err())
	}
}

// Unlock releases the lock taken by Lock.
func (s *Store) Unlock() {
	if s.lockFd < 0 {
		return
	}
	syscall.Flock(s.lockFd, syscall.LOCK_UN)
	syscall.Close(s.lockFd)
	s.lockFd = -1
}
