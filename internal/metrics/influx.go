package metrics

import (
	"context"
	stderrors "errors"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sigenflux/sigenflux/internal/errors"
)

type influxRepository struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

func newInfluxRepository(cfg Config) *influxRepository {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	return &influxRepository{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// WriteBatch commits all points in a single write call. The server applies
// the batch atomically per line-protocol payload, so a failed call leaves
// nothing partially written that a retry would duplicate.
func (r *influxRepository) WriteBatch(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return errors.New().New(ErrEmptyBatch)
	}

	pts := make([]*write.Point, 0, len(points))
	for _, p := range points {
		pts = append(pts, write.NewPoint(p.Measurement, p.Tags, p.Fields, p.Timestamp))
	}

	if err := r.writeAPI.WritePoint(ctx, pts...); err != nil {
		return classifyWriteError(err)
	}

	return nil
}

func (r *influxRepository) Close() {
	r.client.Close()
}

// classifyWriteError separates schema rejections (4xx, not worth retrying)
// from reachability problems (everything else).
func classifyWriteError(err error) error {
	errFactory := errors.New()

	var httpErr *influxhttp.Error
	if stderrors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
		return errFactory.Wrap(ErrSchemaRejected, err)
	}

	return errFactory.Wrap(ErrStoreUnreachable, err)
}
