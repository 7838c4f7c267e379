package collector

import (
	"context"
	"sync"
	"time"

	"github.com/sigenflux/sigenflux/internal/errors"
	"github.com/sigenflux/sigenflux/internal/logger"
	"github.com/sigenflux/sigenflux/internal/metrics"
	"github.com/sigenflux/sigenflux/internal/sigen"
	"github.com/sigenflux/sigenflux/internal/token"
	"github.com/sigenflux/sigenflux/internal/weather"
)

// Authenticator guarantees a valid token before a cycle touches the vendor
// API. Implemented by auth.Client.
type Authenticator interface {
	EnsureValid(ctx context.Context) (token.Record, error)
}

// StationAPI is the vendor-data surface a cycle reads from. Implemented by
// sigen.Client.
type StationAPI interface {
	EnergyFlow(ctx context.Context) (sigen.EnergyFlow, error)
	DailyConsumption(ctx context.Context, date time.Time) (sigen.ConsumptionStats, error)
	SunriseSunset(ctx context.Context, date time.Time) (sigen.SunTimes, error)
	StationInfo(ctx context.Context) (sigen.StationInfo, error)
}

// ForecastAPI is the weather surface. Implemented by weather.Client.
type ForecastAPI interface {
	Fetch(ctx context.Context) (weather.Snapshot, error)
}

// BatchWriter commits one cycle's points as a whole. Implemented by
// metrics.Writer.
type BatchWriter interface {
	Write(ctx context.Context, points []metrics.Point) error
}

// Config carries what a cycle needs beyond its collaborators.
type Config struct {
	StationID string
	Location  *time.Location

	// DailyOncePerDay limits the daily sources (previous-day consumption,
	// sun times, station info) to the first cycle of each station-local
	// day. Single-shot runs leave it false and fetch them every time.
	DailyOncePerDay bool
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.StationID == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing station id")
	}
	if c.Location == nil {
		return errFactory.WithMessage(ErrInvalidConfig, "missing location")
	}
	return nil
}

// Runner orchestrates collection cycles. Safe for sequential reuse; cycles
// must not overlap.
type Runner struct {
	auth    Authenticator
	station StationAPI
	weather ForecastAPI
	writer  BatchWriter
	cfg     Config

	mu           sync.Mutex
	lastDailyDay string
	now          func() time.Time
}

func NewRunner(cfg Config, auth Authenticator, station StationAPI, forecast ForecastAPI, writer BatchWriter) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Runner{
		auth:    auth,
		station: station,
		weather: forecast,
		writer:  writer,
		cfg:     cfg,
		now:     time.Now,
	}, nil
}

// RunCycle executes one collection cycle: validate the token, fetch all due
// sources in parallel, convert, and commit a single batch. Source failures
// degrade the cycle but never abort the siblings; only an authentication
// failure aborts up front.
func (r *Runner) RunCycle(ctx context.Context) (CycleReport, error) {
	errFactory := errors.New()

	report := CycleReport{StartedAt: r.now()}

	if _, err := r.auth.EnsureValid(ctx); err != nil {
		report.FinishedAt = r.now()
		report.Outcome = OutcomeFailed
		return report, errFactory.Wrap(ErrAuthFailed, err)
	}

	localNow := report.StartedAt.In(r.cfg.Location)
	runDaily := r.dailyDue(localNow)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		points  []metrics.Point
		results []SourceStatus
	)

	run := func(name string, fetch func(ctx context.Context) ([]metrics.Point, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()

			pts, err := fetch(ctx)
			status := SourceStatus{Name: name, OK: err == nil, Points: len(pts), Err: err}
			if err != nil {
				logger.Error().Err(err).Str("source", name).Msg("Source failed, continuing without it")
			}

			mu.Lock()
			defer mu.Unlock()
			results = append(results, status)
			if err == nil {
				points = append(points, pts...)
			}
		}()
	}

	run("energy_flow", r.fetchEnergyFlow)
	if r.weather != nil {
		run("weather", r.fetchWeather)
	}
	if runDaily {
		run("daily_consumption", r.fetchConsumption)
		run("sun_times", r.fetchSunTimes)
		run("station_info", r.fetchStationInfo)
	}

	wg.Wait()

	points = metrics.WithFields(points)

	report.Sources = results
	report.PointCount = len(points)

	succeeded := 0
	for _, s := range results {
		if s.OK {
			succeeded++
		}
	}

	if succeeded == 0 {
		report.FinishedAt = r.now()
		report.Outcome = OutcomeFailed
		return report, errFactory.New(ErrAllSourcesDown)
	}

	// Sources may legitimately come back empty; skipping the write keeps an
	// empty cycle from being reported as a persistence failure.
	if len(points) > 0 {
		if err := r.writer.Write(ctx, points); err != nil {
			report.FinishedAt = r.now()
			report.Outcome = OutcomeFailedPersist
			return report, errFactory.Wrap(ErrPersistFailed, err)
		}
	}

	if runDaily && r.dailySucceeded(results) {
		r.markDailyDone(localNow)
	}

	report.FinishedAt = r.now()
	if succeeded == len(results) {
		report.Outcome = OutcomeSuccess
	} else {
		report.Outcome = OutcomeDegraded
	}

	logger.Info().
		Str("outcome", report.Outcome.String()).
		Int("points", report.PointCount).
		Int("sources_ok", succeeded).
		Int("sources_total", len(results)).
		Msg("Collection cycle finished")

	return report, nil
}

func (r *Runner) fetchEnergyFlow(ctx context.Context) ([]metrics.Point, error) {
	flow, err := r.station.EnergyFlow(ctx)
	if err != nil {
		return nil, err
	}
	return []metrics.Point{metrics.FromEnergyFlow(flow, r.cfg.StationID, r.now())}, nil
}

func (r *Runner) fetchWeather(ctx context.Context) ([]metrics.Point, error) {
	snap, err := r.weather.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return metrics.FromWeather(snap, r.cfg.StationID, r.now())
}

// fetchConsumption pulls the previous station-local day, the last one the
// vendor has complete statistics for.
func (r *Runner) fetchConsumption(ctx context.Context) ([]metrics.Point, error) {
	day := r.now().In(r.cfg.Location).AddDate(0, 0, -1)
	stats, err := r.station.DailyConsumption(ctx, day)
	if err != nil {
		return nil, err
	}
	return metrics.FromConsumption(stats, r.cfg.StationID, day, r.cfg.Location)
}

func (r *Runner) fetchSunTimes(ctx context.Context) ([]metrics.Point, error) {
	day := r.now().In(r.cfg.Location)
	sun, err := r.station.SunriseSunset(ctx, day)
	if err != nil {
		return nil, err
	}
	pt, err := metrics.FromSunTimes(sun, r.cfg.StationID, day, r.cfg.Location)
	if err != nil {
		return nil, err
	}
	return []metrics.Point{pt}, nil
}

func (r *Runner) fetchStationInfo(ctx context.Context) ([]metrics.Point, error) {
	info, err := r.station.StationInfo(ctx)
	if err != nil {
		return nil, err
	}
	return []metrics.Point{metrics.FromStationInfo(info, r.cfg.StationID, r.now())}, nil
}

// dailyDue reports whether the daily sources should run this cycle. A day
// with failed daily sources stays due, so the next cycle retries them;
// rewritten points are idempotent.
func (r *Runner) dailyDue(localNow time.Time) bool {
	if !r.cfg.DailyOncePerDay {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastDailyDay != localNow.Format("2006-01-02")
}

func (r *Runner) markDailyDone(localNow time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastDailyDay = localNow.Format("2006-01-02")
}

func (r *Runner) dailySucceeded(results []SourceStatus) bool {
	for _, s := range results {
		switch s.Name {
		case "daily_consumption", "sun_times", "station_info":
			if !s.OK {
				return false
			}
		}
	}
	return true
}
