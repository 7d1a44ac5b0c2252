package xtream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/streamforge/tuner-gateway/internal/errs"
	"github.com/streamforge/tuner-gateway/internal/httpclient"
	"github.com/streamforge/tuner-gateway/internal/safeurl"
)

const authTimeout = 10 * time.Second

// Client talks to one Xtream-Codes account. Callers must not log
// Username/Password directly; use safeurl.RedactURL on any URL built from
// them.
type Client struct {
	BaseURL  string
	Username string
	Password string

	httpClient *http.Client
	limiter    *rate.Limiter
}

// New returns a Client rate-limited to at most ratePerSecond requests per
// second (burst 1), a conservative default that keeps a rescan loop from
// hammering a misbehaving panel.
func New(baseURL, username, password string, ratePerSecond float64) *Client {
	if ratePerSecond <= 0 {
		ratePerSecond = 2
	}
	return &Client{
		BaseURL:    baseURL,
		Username:   username,
		Password:   password,
		httpClient: httpclient.Default(),
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), 1),
	}
}

func (c *Client) apiURL(action string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	u.Path = joinPath(u.Path, "player_api.php")
	q := u.Query()
	q.Set("username", c.Username)
	q.Set("password", c.Password)
	if action != "" {
		q.Set("action", action)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func joinPath(base, leaf string) string {
	if base == "" {
		return "/" + leaf
	}
	if base[len(base)-1] == '/' {
		return base + leaf
	}
	return base + "/" + leaf
}

func (c *Client) doJSON(ctx context.Context, action string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errs.NetworkTransient(err)
	}

	target, err := c.apiURL(action)
	if err != nil {
		return errs.Validation("invalid base url")
	}

	reqCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return errs.Validation("invalid request")
	}

	resp, err := httpclient.DoWithRetry(reqCtx, c.httpClient, req, httpclient.ProviderRetryPolicy)
	if err != nil {
		if reqCtx.Err() != nil {
			return errs.NetworkTransient(fmt.Errorf("timeout contacting %s", safeurl.RedactURL(target)))
		}
		return errs.NetworkTransient(fmt.Errorf("network error contacting %s: %w", safeurl.RedactURL(target), err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errs.NetworkPermanent(fmt.Errorf("http %d from %s", resp.StatusCode, safeurl.RedactURL(target)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.NetworkTransient(err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.New(errs.KindValidation, "invalid response from provider", err)
	}
	return nil
}

// Authenticate verifies the account's credentials and returns the
// provider's account metadata. Returns AuthFailed if auth != 1.
func (c *Client) Authenticate(ctx context.Context) (UserInfo, error) {
	var resp authResponse
	if err := c.doJSON(ctx, "", &resp); err != nil {
		return UserInfo{}, err
	}
	if resp.UserInfo.Auth.Int() != 1 {
		return UserInfo{}, errs.AuthFailed("provider rejected credentials")
	}
	return resp.UserInfo, nil
}

// GetLiveCategories lists the account's live categories.
func (c *Client) GetLiveCategories(ctx context.Context) ([]Category, error) {
	var cats []Category
	if err := c.doJSON(ctx, "get_live_categories", &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// GetLiveStreams lists every live stream visible to the account.
func (c *Client) GetLiveStreams(ctx context.Context) ([]LiveStream, error) {
	var streams []LiveStream
	if err := c.doJSON(ctx, "get_live_streams", &streams); err != nil {
		return nil, err
	}
	return streams, nil
}
