package sigen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
	"github.com/sigenflux/sigenflux/internal/logger"
	"github.com/sigenflux/sigenflux/internal/token"
)

// TokenSource supplies valid bearer tokens and replaces ones the vendor has
// rejected. Implemented by auth.Client.
type TokenSource interface {
	EnsureValid(ctx context.Context) (token.Record, error)
	ForceRefresh(ctx context.Context, stale token.Record) (token.Record, error)
}

// Client wraps the vendor data endpoints. Each operation is a pure
// request/response mapping; the only shared state is the token source.
type Client struct {
	client  *http.Client
	cfg     Config
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker
}

func NewClient(cfg Config, tokens TokenSource) (*Client, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	cfg = cfg.withDefaults()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "sigen-api",
		Timeout: cfg.BreakerOpenPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("vendor API circuit breaker state change")
		},
	})

	return &Client{
		client:  common.HTTPClient(requestTimeout),
		cfg:     cfg,
		tokens:  tokens,
		breaker: breaker,
	}, nil
}

// EnergyFlow fetches the real-time power snapshot for the station.
func (c *Client) EnergyFlow(ctx context.Context) (EnergyFlow, error) {
	params := url.Values{}
	params.Set("id", c.cfg.StationID)
	params.Set("refreshFlag", "true")

	var flow EnergyFlow
	if err := c.get(ctx, energyFlowPath, params, &flow); err != nil {
		return EnergyFlow{}, err
	}
	return flow, nil
}

// DailyConsumption fetches daily and hourly consumption statistics for the
// given station-local date.
func (c *Client) DailyConsumption(ctx context.Context, date time.Time) (ConsumptionStats, error) {
	day := date.Format(vendorDateFormat)
	params := url.Values{}
	params.Set("dateFlag", "1")
	params.Set("startDate", day)
	params.Set("endDate", day)
	params.Set("stationId", c.cfg.StationID)

	var stats ConsumptionStats
	if err := c.get(ctx, consumptionPath, params, &stats); err != nil {
		return ConsumptionStats{}, err
	}
	return stats, nil
}

// SunriseSunset fetches sunrise and sunset times for the given date.
func (c *Client) SunriseSunset(ctx context.Context, date time.Time) (SunTimes, error) {
	params := url.Values{}
	params.Set("stationId", c.cfg.StationID)
	params.Set("date", date.Format(vendorDateFormat))

	var sun SunTimes
	if err := c.get(ctx, sunPath, params, &sun); err != nil {
		return SunTimes{}, err
	}
	return sun, nil
}

// StationInfo fetches station metadata for the owner account.
func (c *Client) StationInfo(ctx context.Context) (StationInfo, error) {
	var info StationInfo
	if err := c.get(ctx, stationHomePath, nil, &info); err != nil {
		return StationInfo{}, err
	}
	return info, nil
}

// OperationalMode queries the station's current operational mode.
func (c *Client) OperationalMode(ctx context.Context) (int, error) {
	var mode int
	if err := c.get(ctx, operationalModePath+"/"+c.cfg.StationID, nil, &mode); err != nil {
		return 0, err
	}
	return mode, nil
}

// SetOperationalMode switches the station's operational mode.
func (c *Client) SetOperationalMode(ctx context.Context, mode int) error {
	payload := map[string]any{
		"operationMode": mode,
		"stationId":     c.cfg.StationID,
	}
	return c.put(ctx, operationalModePath, payload, nil)
}

func (c *Client) get(ctx context.Context, path string, params url.Values, dest any) error {
	return c.call(ctx, func() (*http.Request, error) {
		endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, dest)
}

func (c *Client) put(ctx context.Context, path string, payload, dest any) error {
	return c.call(ctx, func() (*http.Request, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + path
		return http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	}, dest)
}

// call runs one vendor request with bounded retries on transient failures.
// Requests are rebuilt per attempt so a consumed body is never reused.
func (c *Client) call(ctx context.Context, build func() (*http.Request, error), dest any) error {
	return common.Retry(ctx, c.cfg.Backoff, c.retryable, func() error {
		return c.do(ctx, build, dest)
	})
}

func (c *Client) retryable(err error) bool {
	if common.IsNetworkError(err) {
		return true
	}
	// Unrecognized vendor codes and 5xx are treated as transient; the
	// breaker stops the retries if the outage persists.
	return errors.HasCode(err, ErrServerError)
}

type vendorEnvelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// do performs a single request. On an unauthorized/expired response it
// replaces the token and retries that one request exactly once; it never
// loops.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error), dest any) error {
	errFactory := errors.New()

	rec, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return err
	}

	refreshed := false
	for {
		req, err := build()
		if err != nil {
			return errFactory.Wrap(errors.ErrInternal, err)
		}
		c.setHeaders(req, rec.AccessToken)

		expired, err := c.roundTrip(req, dest)
		if err == nil {
			return nil
		}
		if !expired || refreshed {
			return err
		}

		logger.Debug().Str("path", req.URL.Path).Msg("vendor rejected token, refreshing once")
		rec, err = c.tokens.ForceRefresh(ctx, rec)
		if err != nil {
			return err
		}
		refreshed = true
	}
}

// roundTrip executes the request through the circuit breaker and unwraps the
// vendor envelope. The bool result reports an unauthorized/expired-token
// response. Classification happens inside Execute so server-side failures
// (5xx, nonzero envelope codes, undecodable bodies) count against the
// breaker like transport failures do; unauthorized and not-found responses
// are request-level outcomes and do not.
func (c *Client) roundTrip(req *http.Request, dest any) (bool, error) {
	errFactory := errors.New()

	result, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			if code := common.NetworkErrorCode(err); code != "" {
				return nil, errFactory.Wrap(code, err)
			}
			return nil, errFactory.Wrap(errors.ErrNetworkUnreachable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrNetworkUnreachable, err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return &vendorResult{expired: true, err: errFactory.WithMessage(ErrUnauthorized, "unauthorized")}, nil
		case resp.StatusCode == http.StatusNotFound:
			return &vendorResult{err: errFactory.WithData(ErrNotFound, req.URL.Path)}, nil
		case resp.StatusCode != http.StatusOK:
			return nil, errFactory.WithData(ErrServerError, resp.StatusCode)
		}

		var env vendorEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, errFactory.Wrap(ErrSchemaMismatch, err)
		}
		if env.Code == nil {
			return nil, errFactory.WithMessage(ErrSchemaMismatch, "response missing code")
		}
		if *env.Code != 0 {
			if *env.Code == vendorExpiredCode {
				return &vendorResult{expired: true, err: errFactory.WithMessage(ErrUnauthorized, env.Msg)}, nil
			}
			return nil, errFactory.WithData(ErrServerError, struct {
				Code int
				Msg  string
			}{*env.Code, env.Msg})
		}

		if dest != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, dest); err != nil {
				return nil, errFactory.Wrap(ErrSchemaMismatch, err)
			}
		}
		return &vendorResult{}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return false, errFactory.Wrap(ErrCircuitOpen, err)
		}
		return false, err
	}

	res := result.(*vendorResult)
	return res.expired, res.err
}

// vendorResult carries request-level outcomes through the breaker without
// counting them as breaker failures.
type vendorResult struct {
	expired bool
	err     error
}

// setHeaders applies the header set the vendor web client sends. The origin
// and referer are the app host derived from the API host.
func (c *Client) setHeaders(req *http.Request, accessToken string) {
	referer := strings.Replace(c.cfg.BaseURL, "api-", "app-", 1)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("lang", "en_US")
	req.Header.Set("auth-client-id", "sigen")
	req.Header.Set("origin", referer)
	req.Header.Set("referer", referer)
}
