package sigen

import (
	"time"

	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
)

const (
	requestTimeout = 20 * time.Second

	energyFlowPath       = "/device/sigen/station/energyflow"
	consumptionPath      = "/data-process/sigen/station/statistics/station-consumption"
	sunPath              = "/device/sigen/device/weather/sun"
	stationHomePath      = "/device/owner/station/home"
	operationalModePath  = "/device/setting/operational/mode"
	vendorExpiredCode    = 401
	vendorDateFormat     = "20060102"
	vendorDateTimeFormat = "20060102 15:04"
)

type Config struct {
	BaseURL   string
	StationID string
	Backoff   common.Backoff

	// Circuit breaker thresholds; the vendor API disappears for stretches
	// and hammering it during an outage only delays recovery.
	BreakerFailureThreshold uint32
	BreakerOpenPeriod       time.Duration
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.BaseURL == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing base URL")
	}
	if c.StationID == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing station id")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Backoff.InitialInterval <= 0 {
		c.Backoff = common.DefaultBackoff()
	}
	if c.BreakerFailureThreshold == 0 {
		c.BreakerFailureThreshold = 5
	}
	if c.BreakerOpenPeriod <= 0 {
		c.BreakerOpenPeriod = 15 * time.Minute
	}
	return c
}
