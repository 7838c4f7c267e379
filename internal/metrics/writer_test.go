package metrics

import (
	"context"
	"testing"
	"time"

	influxhttp "github.com/influxdata/influxdb-client-go/v2/api/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
)

type fakeRepository struct {
	calls   int
	batches [][]Point
	// errs is consumed one per call; nil entries mean success.
	errs []error
}

func (r *fakeRepository) WriteBatch(_ context.Context, points []Point) error {
	r.calls++
	r.batches = append(r.batches, points)
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		return err
	}
	return nil
}

func (r *fakeRepository) Close() {}

func testWriter(repo Repository) *Writer {
	return NewWriterWithRepository(repo, Config{
		Backoff: common.Backoff{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
	})
}

func somePoints(n int) []Point {
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{
			Measurement: MeasurementEnergyFlow,
			Tags:        map[string]string{TagStationID: "12345"},
			Fields:      map[string]any{"pv_power": float64(i)},
			Timestamp:   time.Now(),
		}
	}
	return pts
}

func TestWriteCommitsWholeBatch(t *testing.T) {
	repo := &fakeRepository{}
	w := testWriter(repo)

	pts := somePoints(14)
	require.NoError(t, w.Write(context.Background(), pts))

	require.Equal(t, 1, repo.calls)
	assert.Len(t, repo.batches[0], 14, "the batch is committed in a single call, never split")
}

func TestWriteRetriesUnreachableStore(t *testing.T) {
	errFactory := errors.New()
	repo := &fakeRepository{errs: []error{
		errFactory.New(ErrStoreUnreachable),
		errFactory.New(ErrStoreUnreachable),
		nil,
	}}
	w := testWriter(repo)

	require.NoError(t, w.Write(context.Background(), somePoints(3)))
	assert.Equal(t, 3, repo.calls)

	// Every retry resends the full batch.
	for _, batch := range repo.batches {
		assert.Len(t, batch, 3)
	}
}

func TestWriteGivesUpAfterBoundedRetries(t *testing.T) {
	errFactory := errors.New()
	repo := &fakeRepository{errs: []error{
		errFactory.New(ErrStoreUnreachable),
		errFactory.New(ErrStoreUnreachable),
		errFactory.New(ErrStoreUnreachable),
		errFactory.New(ErrStoreUnreachable),
	}}
	w := testWriter(repo)

	err := w.Write(context.Background(), somePoints(2))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrStoreUnreachable))
	assert.Equal(t, 3, repo.calls, "initial attempt plus MaxRetries")
}

func TestWriteSchemaRejectionIsNotRetried(t *testing.T) {
	errFactory := errors.New()
	repo := &fakeRepository{errs: []error{errFactory.New(ErrSchemaRejected)}}
	w := testWriter(repo)

	err := w.Write(context.Background(), somePoints(2))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrSchemaRejected))
	assert.Equal(t, 1, repo.calls)
}

func TestWriteEmptyBatch(t *testing.T) {
	repo := &fakeRepository{}
	w := testWriter(repo)

	err := w.Write(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrEmptyBatch))
	assert.Zero(t, repo.calls)
}

func TestClassifyWriteError(t *testing.T) {
	badRequest := &influxhttp.Error{StatusCode: 400, Message: "unable to parse points"}
	assert.True(t, errors.HasCode(classifyWriteError(badRequest), ErrSchemaRejected))

	serverErr := &influxhttp.Error{StatusCode: 503, Message: "unavailable"}
	assert.True(t, errors.HasCode(classifyWriteError(serverErr), ErrStoreUnreachable))

	assert.True(t, errors.HasCode(classifyWriteError(context.DeadlineExceeded), ErrStoreUnreachable))
}
