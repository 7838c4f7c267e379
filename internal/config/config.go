package config

import (
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sigenflux/sigenflux/internal/errors"
)

const (
	DefaultBaseURL    = "https://api-eu.sigencloud.com"
	DefaultWeatherURL = "https://api.open-meteo.com/v1/forecast"
	// Paying Open-Meteo customers use a dedicated host.
	CustomerWeatherURL = "https://customer-api.open-meteo.com/v1/forecast"

	DefaultTimezone  = "Europe/Dublin"
	DefaultTokenFile = "sigen_token.json"
	DefaultInterval  = 60
	DefaultLogLevel  = "info"
)

type Config struct {
	// Sigen cloud credentials. TransformedPassword is the opaque secret
	// captured from the vendor web client; it is never derived or parsed.
	Username            string `mapstructure:"username"`
	TransformedPassword string `mapstructure:"transformed_password"`
	StationID           string `mapstructure:"station_id"`
	BaseURL             string `mapstructure:"base_url"`

	// Weather provider
	Latitude      float64 `mapstructure:"latitude"`
	Longitude     float64 `mapstructure:"longitude"`
	Timezone      string  `mapstructure:"timezone"`
	WeatherAPIKey string  `mapstructure:"weather_api_key"`

	// Time-series store
	InfluxURL    string `mapstructure:"influx_url"`
	InfluxToken  string `mapstructure:"influx_token"`
	InfluxOrg    string `mapstructure:"influx_org"`
	InfluxBucket string `mapstructure:"influx_bucket"`

	// Agent behaviour
	TokenFile string `mapstructure:"token_file"`
	Interval  int    `mapstructure:"interval"`
	Daemon    bool   `mapstructure:"daemon"`
	Debug     bool   `mapstructure:"debug"`
	Verbose   bool   `mapstructure:"verbose"`
	LogLevel  string `mapstructure:"log_level"`
}

// WeatherURL returns the forecast endpoint, switching to the customer host
// when an API key is configured.
func (c *Config) WeatherURL() string {
	if c.WeatherAPIKey != "" {
		return CustomerWeatherURL
	}
	return DefaultWeatherURL
}

// IntervalDuration returns the daemon cycle interval.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

func Load() (*Config, error) {
	return load(os.Args[1:])
}

func load(args []string) (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("timezone", DefaultTimezone)
	v.SetDefault("token_file", DefaultTokenFile)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("log_level", DefaultLogLevel)

	fs := pflag.NewFlagSet("sigenflux", pflag.ContinueOnError)
	fs.Bool("daemon", false, "Run continuously instead of a single cycle")
	fs.Int("interval", DefaultInterval, "Seconds between cycles in daemon mode")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.String("log-level", "", "Logging level (debug, info, warning, error)")
	fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	// Config file: explicit flag/env first, then the usual locations.
	configPath, _ := fs.GetString("config")
	if configPath == "" {
		configPath = os.Getenv("SIGENFLUX_CONFIG")
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sigenflux")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/sigenflux")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SIGENFLUX")
	v.AutomaticEnv()
	// Unmarshal only sees env values for keys viper knows about.
	for _, key := range []string{
		"username", "transformed_password", "station_id", "base_url",
		"latitude", "longitude", "timezone", "weather_api_key",
		"influx_url", "influx_token", "influx_org", "influx_bucket",
		"token_file", "interval", "daemon", "debug", "verbose", "log_level",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// An explicitly requested file that is missing is also fatal.
			if configPath != "" || !os.IsNotExist(err) {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	// Flags override file and environment values.
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config":
		case "log-level":
			v.Set("log_level", f.Value.String())
		default:
			v.Set(f.Name, f.Value.String())
		}
	})

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate fails fast before any network call is attempted.
func (c *Config) Validate() error {
	errFactory := errors.New()

	var missing []string
	required := []struct {
		key string
		ok  bool
	}{
		{"username", c.Username != ""},
		{"transformed_password", c.TransformedPassword != ""},
		{"station_id", c.StationID != ""},
		{"influx_url", c.InfluxURL != ""},
		{"influx_token", c.InfluxToken != ""},
		{"influx_org", c.InfluxOrg != ""},
		{"influx_bucket", c.InfluxBucket != ""},
		{"latitude", c.Latitude != 0},
		{"longitude", c.Longitude != 0},
	}
	for _, r := range required {
		if !r.ok {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return errFactory.WithData(errors.ErrMissingConfig, missing)
	}

	if c.Latitude < -90 || c.Latitude > 90 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "latitude out of range")
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "longitude out of range")
	}
	if c.Interval <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "interval must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	switch c.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}
