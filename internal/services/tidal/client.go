package tidal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"cratesync/internal/config"
	"cratesync/internal/logging"
	"cratesync/internal/services"
)

const (
	userAgent          = "cratesync/1.0"
	tokenRefreshLeeway = 5 * time.Minute
	defaultTimeout     = 15 * time.Second
	defaultSearchLimit = 10
	pageSize           = 100
	v1Prefix           = "/v1"
	v2Prefix           = "/v2"
)

// ErrNoSession is returned when no device login has been completed yet.
var ErrNoSession = errors.New("no tidal session; run `cratesync auth login`")

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for Tidal API calls.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithTokenStore injects a custom session persistence layer.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// Client is a Tidal API client bound to one persisted session.
type Client struct {
	apiBase      string
	authBase     string
	clientID     string
	clientSecret string
	countryCode  string
	searchLimit  int

	http   HTTPDoer
	store  TokenStore
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	session Session
	loaded  bool
}

// New builds a Client from configuration.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Tidal.ClientID) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "tidal", "client", "tidal.client_id is not set", nil)
	}

	timeout := time.Duration(cfg.Tidal.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := cfg.Tidal.SearchLimit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	c := &Client{
		apiBase:      strings.TrimRight(cfg.Tidal.APIBaseURL, "/"),
		authBase:     strings.TrimRight(cfg.Tidal.AuthBaseURL, "/"),
		clientID:     cfg.Tidal.ClientID,
		clientSecret: cfg.Tidal.ClientSecret,
		countryCode:  cfg.Tidal.CountryCode,
		searchLimit:  limit,
		http:         &http.Client{Timeout: timeout},
		store:        NewFileTokenStore(cfg.TokenPath()),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	c.logger = logging.NewComponentLogger(c.logger, "tidal")
	return c, nil
}

// Authenticate loads the saved session, refreshes it when it is about to
// expire, and confirms it against the sessions endpoint. Any failure is
// reported as services.ErrAuthentication.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadLocked(); err != nil {
		return services.Wrap(services.ErrAuthentication, "tidal", "authenticate", "load session", err)
	}
	if c.session.AccessToken == "" && c.session.RefreshToken == "" {
		return services.Wrap(services.ErrAuthentication, "tidal", "authenticate", "", ErrNoSession)
	}
	if !c.session.Valid(c.now(), tokenRefreshLeeway) {
		if err := c.refreshLocked(ctx); err != nil {
			return services.Wrap(services.ErrAuthentication, "tidal", "authenticate", "refresh session", err)
		}
	}

	err := c.verifyLocked(ctx)
	if errors.Is(err, services.ErrAuthentication) && c.session.RefreshToken != "" {
		// The server can revoke a token before its advertised expiry.
		if refreshErr := c.refreshLocked(ctx); refreshErr != nil {
			return services.Wrap(services.ErrAuthentication, "tidal", "authenticate", "refresh session", refreshErr)
		}
		err = c.verifyLocked(ctx)
	}
	if err != nil {
		if errors.Is(err, services.ErrAuthentication) {
			return err
		}
		return services.Wrap(services.ErrAuthentication, "tidal", "authenticate", "verify session", err)
	}

	c.logger.Debug("tidal session verified",
		logging.Int64("user_id", c.session.UserID),
		logging.String("country_code", c.session.CountryCode),
	)
	return nil
}

// UserID returns the authenticated account id, or zero before Authenticate.
func (c *Client) UserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.UserID
}

func (c *Client) loadLocked() error {
	if c.loaded {
		return nil
	}
	session, err := c.store.Load()
	if err != nil {
		return err
	}
	c.session = session
	c.loaded = true
	return nil
}

func (c *Client) verifyLocked(ctx context.Context) error {
	var resp struct {
		UserID      int64  `json:"userId"`
		CountryCode string `json:"countryCode"`
	}
	_, err := c.send(ctx, apiRequest{
		method: http.MethodGet,
		base:   c.apiBase,
		path:   v1Prefix + "/sessions",
		token:  c.session.AccessToken,
	}, &resp)
	if err != nil {
		return err
	}
	if resp.UserID == 0 {
		return services.Wrap(services.ErrAuthentication, "tidal", "authenticate", "session has no user", nil)
	}
	dirty := c.session.UserID != resp.UserID
	c.session.UserID = resp.UserID
	if resp.CountryCode != "" && c.session.CountryCode != resp.CountryCode {
		c.session.CountryCode = resp.CountryCode
		dirty = true
	}
	if dirty {
		if err := c.store.Save(c.session); err != nil {
			c.logger.Warn("failed to persist tidal session", logging.Error(err))
		}
	}
	return nil
}

// authorized returns the bearer token and country for an API call. It fails
// when Authenticate has not established a session.
func (c *Client) authorized() (token, country string, userID int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.AccessToken == "" || c.session.UserID == 0 {
		return "", "", 0, services.Wrap(services.ErrAuthentication, "tidal", "request", "not authenticated", ErrNoSession)
	}
	country = c.session.CountryCode
	if country == "" {
		country = c.countryCode
	}
	return c.session.AccessToken, country, c.session.UserID, nil
}

func (c *Client) v1(ctx context.Context, method, path string, query, form url.Values, headers map[string]string, out any) (http.Header, error) {
	token, country, _, err := c.authorized()
	if err != nil {
		return nil, err
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("countryCode", country)
	return c.send(ctx, apiRequest{
		method:  method,
		base:    c.apiBase,
		path:    v1Prefix + path,
		query:   query,
		form:    form,
		headers: headers,
		token:   token,
	}, out)
}

func (c *Client) v2(ctx context.Context, method, path string, query url.Values, out any) error {
	token, country, _, err := c.authorized()
	if err != nil {
		return err
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("countryCode", country)
	_, err = c.send(ctx, apiRequest{
		method: method,
		base:   c.apiBase,
		path:   v2Prefix + path,
		query:  query,
		token:  token,
	}, out)
	return err
}
