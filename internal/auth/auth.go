package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sigenflux/sigenflux/internal/common"
	"github.com/sigenflux/sigenflux/internal/errors"
	"github.com/sigenflux/sigenflux/internal/logger"
	"github.com/sigenflux/sigenflux/internal/token"
)

// State tracks where the client is in the token lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client owns the vendor token lifecycle. All token acquisition goes through
// EnsureValid; nothing else reads or writes the token file.
type Client struct {
	client *http.Client
	cfg    Config
	store  *token.Store

	mu    sync.Mutex
	state State

	now func() time.Time
}

func NewClient(cfg Config, store *token.Store) (*Client, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	return &Client{
		client: common.HTTPClient(requestTimeout),
		cfg:    cfg.withDefaults(),
		store:  store,
		state:  StateUnauthenticated,
		now:    time.Now,
	}, nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// EnsureValid returns a token record that is guaranteed not to be expired,
// transparently authenticating or refreshing as needed. The token file lock
// is held for the whole decision so two overlapping invocations cannot race
// two refreshes against the same refresh token.
func (c *Client) EnsureValid(ctx context.Context) (token.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Lock(ctx); err != nil {
		return token.Record{}, err
	}
	defer c.store.Unlock()

	rec, ok, err := c.store.Load()
	if err != nil {
		// Unreadable or corrupt token file: fall back to a fresh
		// authentication rather than aborting the cycle.
		logger.Warn().Err(err).Msg("token file unreadable, re-authenticating from scratch")
		return c.authenticateAndSave(ctx)
	}
	if !ok {
		logger.Info().Msg("no persisted token, authenticating")
		return c.authenticateAndSave(ctx)
	}

	if !rec.Expired(c.now(), c.cfg.ExpirySkew) {
		c.state = StateAuthenticated
		return rec, nil
	}

	logger.Info().Time("expires_at", rec.ExpiresAt).Msg("token expired, refreshing")
	fresh, err := c.refresh(ctx, rec)
	if err != nil {
		if errors.HasCode(err, ErrInvalidRefresh) {
			// The refresh token itself is dead; one full re-authentication
			// is the only recovery.
			logger.Warn().Msg("refresh token rejected, re-authenticating")
			return c.authenticateAndSave(ctx)
		}
		return token.Record{}, err
	}

	if err := c.store.Save(fresh); err != nil {
		return token.Record{}, err
	}
	c.state = StateAuthenticated
	return fresh, nil
}

// ForceRefresh replaces a token the vendor rejected even though our clock
// considered it valid. stale is the record the caller was using; if another
// invocation already refreshed it while we waited for the lock, the stored
// record is reused instead of burning a second refresh on the same expiry.
func (c *Client) ForceRefresh(ctx context.Context, stale token.Record) (token.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Lock(ctx); err != nil {
		return token.Record{}, err
	}
	defer c.store.Unlock()

	rec, ok, err := c.store.Load()
	if err != nil || !ok {
		return c.authenticateAndSave(ctx)
	}

	if rec.AccessToken != stale.AccessToken && !rec.Expired(c.now(), c.cfg.ExpirySkew) {
		c.state = StateAuthenticated
		return rec, nil
	}

	fresh, err := c.refresh(ctx, rec)
	if err != nil {
		if errors.HasCode(err, ErrInvalidRefresh) {
			logger.Warn().Msg("refresh token rejected, re-authenticating")
			return c.authenticateAndSave(ctx)
		}
		return token.Record{}, err
	}

	if err := c.store.Save(fresh); err != nil {
		return token.Record{}, err
	}
	c.state = StateAuthenticated
	return fresh, nil
}

func (c *Client) authenticateAndSave(ctx context.Context) (token.Record, error) {
	rec, err := c.Authenticate(ctx)
	if err != nil {
		return token.Record{}, err
	}
	if err := c.store.Save(rec); err != nil {
		return token.Record{}, err
	}
	c.state = StateAuthenticated
	return rec, nil
}

// Authenticate exchanges the opaque transformed-password secret for an
// initial token record. The secret's internal derivation is vendor
// proprietary; it is passed through as-is and only form-encoded at the wire
// boundary.
func (c *Client) Authenticate(ctx context.Context) (token.Record, error) {
	c.state = StateAuthenticating

	data := url.Values{}
	data.Set("username", c.cfg.Username)
	data.Set("password", c.cfg.TransformedPassword)
	data.Set("scope", "server")
	data.Set("grant_type", "password")
	data.Set("userDeviceId", strconv.FormatInt(c.now().UnixMilli(), 10))

	rec, err := c.exchange(ctx, data)
	if err != nil {
		if errors.HasCode(err, ErrInvalidTransform) {
			c.state = StateFailed
		}
		return token.Record{}, err
	}

	logger.Info().Time("expires_at", rec.ExpiresAt).Msg("initial token acquired")
	c.state = StateAuthenticated
	return rec, nil
}

// refresh exchanges the refresh token for a new record.
func (c *Client) refresh(ctx context.Context, old token.Record) (token.Record, error) {
	errFactory := errors.New()

	if old.RefreshToken == "" {
		return token.Record{}, errFactory.WithMessage(ErrInvalidRefresh, "no refresh token available")
	}

	c.state = StateRefreshing

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", old.RefreshToken)
	data.Set("userDeviceId", strconv.FormatInt(c.now().UnixMilli(), 10))

	rec, err := c.exchange(ctx, data)
	if err != nil {
		if errors.HasCode(err, ErrInvalidTransform) || errors.HasCode(err, ErrInvalidRefresh) {
			c.state = StateFailed
		}
		return token.Record{}, err
	}

	logger.Info().Time("expires_at", rec.ExpiresAt).Msg("token refreshed")
	c.state = StateAuthenticated
	return rec, nil
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type tokenEnvelope struct {
	Code *int         `json:"code"`
	Msg  string       `json:"msg"`
	Data tokenPayload `json:"data"`
}

// exchange posts a grant to the vendor token endpoint with bounded
// exponential backoff on transient failures. Terminal vendor rejections are
// surfaced immediately and never retried.
func (c *Client) exchange(ctx context.Context, data url.Values) (token.Record, error) {
	var rec token.Record

	isRefresh := data.Get("grant_type") == "refresh_token"

	err := common.Retry(ctx, c.cfg.Backoff, c.retryable, func() error {
		var err error
		rec, err = c.exchangeOnce(ctx, data, isRefresh)
		return err
	})
	return rec, err
}

func (c *Client) retryable(err error) bool {
	if common.IsNetworkError(err) {
		return true
	}
	// Unrecognized vendor rejections are treated as transient.
	return errors.HasCode(err, ErrVendorRejected)
}

func (c *Client) exchangeOnce(ctx context.Context, data url.Values, isRefresh bool) (token.Record, error) {
	errFactory := errors.New()

	endpoint := strings.TrimSuffix(c.cfg.BaseURL, "/") + tokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return token.Record{}, errFactory.Wrap(errors.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+clientAuthBasic)

	resp, err := c.client.Do(req)
	if err != nil {
		if code := common.NetworkErrorCode(err); code != "" {
			return token.Record{}, errFactory.Wrap(code, err)
		}
		return token.Record{}, errFactory.Wrap(errors.ErrNetworkUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return token.Record{}, errFactory.Wrap(errors.ErrNetworkUnreachable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return token.Record{}, errFactory.WithData(ErrVendorRejected, resp.StatusCode)
	}

	var env tokenEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return token.Record{}, errFactory.Wrap(ErrSchemaMismatch, err)
	}
	if env.Code == nil {
		return token.Record{}, errFactory.WithMessage(ErrSchemaMismatch, "token response missing code")
	}

	if *env.Code != 0 {
		if isRefresh && containsCode(c.cfg.InvalidRefreshCodes, *env.Code) {
			return token.Record{}, errFactory.WithMessage(ErrInvalidRefresh,
				fmt.Sprintf("vendor rejected refresh token (code %d): %s", *env.Code, env.Msg))
		}
		if !isRefresh && containsCode(c.cfg.InvalidCredentialCodes, *env.Code) {
			return token.Record{}, errFactory.WithMessage(ErrInvalidTransform,
				fmt.Sprintf("vendor rejected credentials (code %d): %s; recapture the transformed password", *env.Code, env.Msg))
		}
		return token.Record{}, errFactory.WithData(ErrVendorRejected, struct {
			Code int
			Msg  string
		}{*env.Code, env.Msg})
	}

	if env.Data.AccessToken == "" {
		return token.Record{}, errFactory.WithMessage(ErrSchemaMismatch, "token response missing access_token")
	}

	return token.Record{
		AccessToken:  env.Data.AccessToken,
		RefreshToken: env.Data.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(env.Data.ExpiresIn) * time.Second),
	}, nil
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
