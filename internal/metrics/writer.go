package metrics

import (
	"context"

	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
	"github.com/sigenflux/sigenflux/internal/logger"
)

// Writer persists collected points. Each Write call is all-or-nothing: the
// batch is retried whole on transient store failures and never split.
type Writer struct {
	repo Repository
	cfg  Config
}

func NewWriter(cfg Config) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	return &Writer{
		repo: newInfluxRepository(cfg),
		cfg:  cfg,
	}, nil
}

// NewWriterWithRepository wires an explicit repository.
func NewWriterWithRepository(repo Repository, cfg Config) *Writer {
	cfg = cfg.withDefaults()

	return &Writer{
		repo: repo,
		cfg:  cfg,
	}
}

func (w *Writer) Write(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return errors.New().WithMessage(ErrEmptyBatch, "refusing to commit an empty batch")
	}

	retryable := func(err error) bool {
		return errors.HasCode(err, ErrStoreUnreachable)
	}

	err := common.Retry(ctx, w.cfg.Backoff, retryable, func() error {
		return w.repo.WriteBatch(ctx, points)
	})
	if err != nil {
		return err
	}

	logger.Debug().Int("points", len(points)).Msg("Committed metrics batch")

	return nil
}

func (w *Writer) Close() {
	w.repo.Close()
}
