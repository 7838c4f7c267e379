package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
)

const requestTimeout = 15 * time.Second

// hourlyVariables is the forecast variable set relevant to solar yield:
// temperature, precipitation, cloud cover and the three radiation channels.
const hourlyVariables = "temperature_2m,relative_humidity_2m,apparent_temperature," +
	"precipitation_probability,precipitation,weather_code,cloud_cover," +
	"shortwave_radiation,direct_radiation,diffuse_radiation," +
	"wind_speed_10m,wind_direction_10m"

type Config struct {
	BaseURL   string
	Latitude  float64
	Longitude float64
	Timezone  string
	APIKey    string
	Backoff   common.Backoff
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.BaseURL == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing base URL")
	}
	if c.Timezone == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "missing timezone")
	}
	return nil
}

// CurrentConditions is the provider's current_weather block.
type CurrentConditions struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windspeed"`
	WeatherCode int     `json:"weathercode"`
}

// HourlyForecast holds the parallel per-hour arrays as the provider returns
// them. Index i of every slice describes the same hour.
type HourlyForecast struct {
	Time                     []string  `json:"time"`
	Temperature              []float64 `json:"temperature_2m"`
	RelativeHumidity         []float64 `json:"relative_humidity_2m"`
	ApparentTemperature      []float64 `json:"apparent_temperature"`
	PrecipitationProbability []float64 `json:"precipitation_probability"`
	Precipitation            []float64 `json:"precipitation"`
	WeatherCode              []int     `json:"weather_code"`
	CloudCover               []float64 `json:"cloud_cover"`
	ShortwaveRadiation       []float64 `json:"shortwave_radiation"`
	DirectRadiation          []float64 `json:"direct_radiation"`
	DiffuseRadiation         []float64 `json:"diffuse_radiation"`
	WindSpeed                []float64 `json:"wind_speed_10m"`
	WindDirection            []float64 `json:"wind_direction_10m"`
}

// Snapshot is one weather fetch: current conditions plus two days of hourly
// forecast. It has no persisted identity of its own.
type Snapshot struct {
	Latitude  float64           `json:"latitude"`
	Longitude float64           `json:"longitude"`
	Timezone  string            `json:"timezone"`
	Current   CurrentConditions `json:"current_weather"`
	Hourly    HourlyForecast    `json:"hourly"`
}

// Client fetches forecasts from Open-Meteo. It holds no state and needs no
// authentication; fetches are idempotent and safe to retry.
type Client struct {
	client *http.Client
	cfg    Config
}

func NewClient(cfg Config) (*Client, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff = common.DefaultBackoff()
	}

	return &Client{
		client: common.HTTPClient(requestTimeout),
		cfg:    cfg,
	}, nil
}

// Fetch retrieves current weather and the hourly forecast, retrying with
// bounded exponential backoff on network errors and server-side failures.
func (c *Client) Fetch(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := common.Retry(ctx, c.cfg.Backoff, c.retryable, func() error {
		var err error
		snap, err = c.fetchOnce(ctx)
		return err
	})
	return snap, err
}

func (c *Client) retryable(err error) bool {
	return common.IsNetworkError(err) || errors.HasCode(err, ErrServerError)
}

func (c *Client) fetchOnce(ctx context.Context) (Snapshot, error) {
	errFactory := errors.New()

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%f", c.cfg.Latitude))
	params.Set("longitude", fmt.Sprintf("%f", c.cfg.Longitude))
	params.Set("current_weather", "true")
	params.Set("hourly", hourlyVariables)
	params.Set("timezone", c.cfg.Timezone)
	params.Set("forecast_days", "2")
	if c.cfg.APIKey != "" {
		params.Set("apikey", c.cfg.APIKey)
	}

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, errFactory.Wrap(errors.ErrInternal, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if code := common.NetworkErrorCode(err); code != "" {
			return Snapshot{}, errFactory.Wrap(code, err)
		}
		return Snapshot{}, errFactory.Wrap(errors.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, errFactory.WithData(ErrServerError, resp.StatusCode)
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, errFactory.Wrap(ErrSchemaMismatch, err)
	}
	if len(snap.Hourly.Time) == 0 && snap.Current.Time == "" {
		return Snapshot{}, errFactory.WithMessage(ErrSchemaMismatch, "forecast response carried no data")
	}

	snap.Timezone = c.cfg.Timezone
	return snap, nil
}
