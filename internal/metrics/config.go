package metrics

import (
	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
)

// Config holds the connection settings for the InfluxDB sink.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string

	// Backoff bounds the whole-batch retry loop in the writer.
	Backoff common.Backoff
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.URL == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing influx url")
	}
	if c.Token == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing influx token")
	}
	if c.Org == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing influx org")
	}
	if c.Bucket == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing influx bucket")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Backoff.InitialInterval <= 0 {
		c.Backoff = common.DefaultBackoff()
	}
	return c
}
