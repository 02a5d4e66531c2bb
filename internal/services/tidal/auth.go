package tidal

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cratesync/internal/logging"
	"cratesync/internal/services"
)

const (
	deviceGrantType     = "urn:ietf:params:oauth:grant-type:device_code"
	deviceScope         = "r_usr w_usr w_sub"
	defaultPollInterval = 5 * time.Second
)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		UserID      int64  `json:"userId"`
		CountryCode string `json:"countryCode"`
	} `json:"user"`
}

// StartDeviceLogin requests a device code the user confirms in a browser.
func (c *Client) StartDeviceLogin(ctx context.Context) (*DeviceLogin, error) {
	var resp struct {
		DeviceCode              string `json:"deviceCode"`
		UserCode                string `json:"userCode"`
		VerificationURI         string `json:"verificationUri"`
		VerificationURIComplete string `json:"verificationUriComplete"`
		ExpiresIn               int    `json:"expiresIn"`
		Interval                int    `json:"interval"`
	}
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("scope", deviceScope)
	if _, err := c.send(ctx, apiRequest{
		method: http.MethodPost,
		base:   c.authBase,
		path:   "/v1/oauth2/device_authorization",
		form:   form,
	}, &resp); err != nil {
		return nil, services.Wrap(services.ErrAuthentication, "tidal", "device login", "request device code", err)
	}
	if resp.DeviceCode == "" {
		return nil, services.Wrap(services.ErrAuthentication, "tidal", "device login", "missing device code", nil)
	}

	uri := firstNonEmpty(resp.VerificationURIComplete, resp.VerificationURI)
	if uri != "" && !strings.Contains(uri, "://") {
		uri = "https://" + uri
	}
	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &DeviceLogin{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: uri,
		ExpiresAt:       c.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Interval:        interval,
	}, nil
}

// CompleteDeviceLogin polls until the user approves the device code, the code
// expires, or ctx is cancelled. On approval the session is persisted.
func (c *Client) CompleteDeviceLogin(ctx context.Context, login *DeviceLogin) error {
	if login == nil || login.DeviceCode == "" {
		return services.Wrap(services.ErrValidation, "tidal", "device login", "device code is required", nil)
	}
	interval := login.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}
	form.Set("device_code", login.DeviceCode)
	form.Set("grant_type", deviceGrantType)
	form.Set("scope", deviceScope)

	for {
		var resp tokenResponse
		_, err := c.send(ctx, apiRequest{
			method: http.MethodPost,
			base:   c.authBase,
			path:   "/v1/oauth2/token",
			form:   form,
		}, &resp)
		if err == nil {
			return c.adopt(resp)
		}

		switch statusCode(err) {
		case "authorization_pending":
		case "slow_down":
			interval += defaultPollInterval
		case "expired_token":
			return services.Wrap(services.ErrAuthentication, "tidal", "device login", "device code expired", err)
		default:
			return services.Wrap(services.ErrAuthentication, "tidal", "device login", "poll token", err)
		}
		if !login.ExpiresAt.IsZero() && c.now().After(login.ExpiresAt) {
			return services.Wrap(services.ErrAuthentication, "tidal", "device login", "device code expired", nil)
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return services.Wrap(services.ErrInterrupted, "tidal", "device login", "", ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Client) adopt(resp tokenResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.session = Session{
		TokenType:    firstNonEmpty(resp.TokenType, "Bearer"),
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    c.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		UserID:       resp.User.UserID,
		CountryCode:  resp.User.CountryCode,
	}
	c.loaded = true
	if err := c.store.Save(c.session); err != nil {
		return services.Wrap(services.ErrConfiguration, "tidal", "device login", "save session", err)
	}
	c.logger.Info("tidal login complete", logging.Int64("user_id", c.session.UserID))
	return nil
}

// refreshLocked exchanges the refresh token for a new access token. Tidal
// omits the refresh token from the response, so the old one is kept.
func (c *Client) refreshLocked(ctx context.Context) error {
	if c.session.RefreshToken == "" {
		return ErrNoSession
	}
	form := url.Values{}
	form.Set("client_id", c.clientID)
	if c.clientSecret != "" {
		form.Set("client_secret", c.clientSecret)
	}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.session.RefreshToken)
	form.Set("scope", deviceScope)

	var resp tokenResponse
	if _, err := c.send(ctx, apiRequest{
		method: http.MethodPost,
		base:   c.authBase,
		path:   "/v1/oauth2/token",
		form:   form,
	}, &resp); err != nil {
		return err
	}
	if resp.AccessToken == "" {
		return services.Wrap(services.ErrAuthentication, "tidal", "refresh", "missing access token", nil)
	}

	c.session.AccessToken = resp.AccessToken
	c.session.TokenType = firstNonEmpty(resp.TokenType, c.session.TokenType, "Bearer")
	c.session.ExpiresAt = c.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	if resp.RefreshToken != "" {
		c.session.RefreshToken = resp.RefreshToken
	}
	if resp.User.UserID != 0 {
		c.session.UserID = resp.User.UserID
	}
	if err := c.store.Save(c.session); err != nil {
		c.logger.Warn("failed to persist refreshed tidal session", logging.Error(err))
	}
	c.logger.Debug("tidal access token refreshed")
	return nil
}
