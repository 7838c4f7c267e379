package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sigenflux/sigenflux/internal/auth"
	"github.com/sigenflux/sigenflux/internal/collector"
	"github.com/sigenflux/sigenflux/internal/config"
	"github.com/sigenflux/sigenflux/internal/errors"
	"github.com/sigenflux/sigenflux/internal/logger"
	"github.com/sigenflux/sigenflux/internal/metrics"
	"github.com/sigenflux/sigenflux/internal/sigen"
	"github.com/sigenflux/sigenflux/internal/token"
	"github.com/sigenflux/sigenflux/internal/weather"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx, cfg); err != nil {
		var domainErr errors.Error
		if errors.As(err, &domainErr) {
			logger.FatalWithCode(domainErr).Msg("Agent exited with error")
		} else {
			logger.Fatal().Err(err).Msg("Agent exited with error")
		}
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	errFactory := errors.New()

	runner, writer, err := wire(cfg)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitApp, err)
	}
	defer writer.Close()

	if !cfg.Daemon {
		report, err := runner.RunCycle(ctx)
		if err != nil {
			if terminalCycleError(err) {
				return err
			}
			// A transient failure leaves a visible gap; the next scheduled
			// invocation fills it.
			logCycleFailure(err, report)
			return nil
		}
		if report.Outcome == collector.OutcomeDegraded {
			logDegraded(report)
		}
		return nil
	}

	return loop(ctx, cfg, runner)
}

// loop runs cycles on a fixed interval, starting with one immediately so a
// restart never waits a full interval before collecting. A tick that arrives
// while the previous cycle is still running is simply the next one to fire;
// cycles never overlap.
func loop(ctx context.Context, cfg *config.Config, runner *collector.Runner) error {
	interval := cfg.IntervalDuration()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().
		Str("station_id", cfg.StationID).
		Dur("interval", interval).
		Msg("Starting collection loop")

	if err := scheduledCycle(ctx, runner); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Collection loop stopped")
			return nil
		case <-ticker.C:
			if err := scheduledCycle(ctx, runner); err != nil {
				return err
			}
		}
	}
}

// scheduledCycle runs one cycle and absorbs everything the next tick can
// retry; only a credentials-level auth failure propagates.
func scheduledCycle(ctx context.Context, runner *collector.Runner) error {
	report, err := runner.RunCycle(ctx)
	if err != nil {
		if errors.HasCode(err, collector.ErrAuthFailed) && terminalAuth(err) {
			return err
		}
		logCycleFailure(err, report)
		return nil
	}
	if report.Outcome == collector.OutcomeDegraded {
		logDegraded(report)
	}
	return nil
}

func wire(cfg *config.Config) (*collector.Runner, *metrics.Writer, error) {
	store := token.NewStore(cfg.TokenFile)

	authClient, err := auth.NewClient(auth.Config{
		Username:            cfg.Username,
		TransformedPassword: cfg.TransformedPassword,
		BaseURL:             cfg.BaseURL,
	}, store)
	if err != nil {
		return nil, nil, err
	}

	stationClient, err := sigen.NewClient(sigen.Config{
		BaseURL:   cfg.BaseURL,
		StationID: cfg.StationID,
	}, authClient)
	if err != nil {
		return nil, nil, err
	}

	weatherClient, err := weather.NewClient(weather.Config{
		BaseURL:   cfg.WeatherURL(),
		Latitude:  cfg.Latitude,
		Longitude: cfg.Longitude,
		Timezone:  cfg.Timezone,
		APIKey:    cfg.WeatherAPIKey,
	})
	if err != nil {
		return nil, nil, err
	}

	writer, err := metrics.NewWriter(metrics.Config{
		URL:    cfg.InfluxURL,
		Token:  cfg.InfluxToken,
		Org:    cfg.InfluxOrg,
		Bucket: cfg.InfluxBucket,
	})
	if err != nil {
		return nil, nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		writer.Close()
		return nil, nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
	}

	runner, err := collector.NewRunner(collector.Config{
		StationID:       cfg.StationID,
		Location:        loc,
		DailyOncePerDay: cfg.Daemon,
	}, authClient, stationClient, weatherClient, writer)
	if err != nil {
		writer.Close()
		return nil, nil, err
	}

	return runner, writer, nil
}

// terminalAuth reports whether the auth failure is credentials-level, where
// retrying next tick cannot help.
func terminalAuth(err error) bool {
	return errors.HasCode(err, auth.ErrInvalidTransform) ||
		errors.HasCode(err, auth.ErrInvalidConfig)
}

// terminalCycleError decides the single-shot exit code: only an unrecoverable
// credential failure or fetched-but-unstored data warrants a non-zero exit.
func terminalCycleError(err error) bool {
	if errors.HasCode(err, collector.ErrPersistFailed) {
		return true
	}
	return errors.HasCode(err, collector.ErrAuthFailed) && terminalAuth(err)
}

func logCycleFailure(err error, report collector.CycleReport) {
	var domainErr errors.Error
	if errors.As(err, &domainErr) {
		logger.ErrorWithCode(domainErr).Str("outcome", report.Outcome.String()).Msg("Cycle failed")
		return
	}
	logger.Error().Err(err).Str("outcome", report.Outcome.String()).Msg("Cycle failed")
}

func logDegraded(report collector.CycleReport) {
	for _, s := range report.Sources {
		if !s.OK {
			logger.Warn().Str("source", s.Name).Err(s.Err).Msg("Cycle degraded: source failed")
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
