package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tradesense/tradesense-go/apierror"
	"github.com/tradesense/tradesense-go/auth"
	tshttp "github.com/tradesense/tradesense-go/http"
	"github.com/tradesense/tradesense-go/logger"
)

// Defaults used when Config leaves a field empty
const (
	DefaultBaseURL    = "http://localhost:5000"
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 0
	DefaultRetryDelay = 100 * time.Millisecond
)

// Config holds the settings needed to reach the TradeSense API
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	RefreshPath    string
	RefreshTimeout time.Duration
}

// Client is the TradeSense SDK. Every call carries the session's access
// token, renews it transparently on 401 and returns failures as
// *apierror.Error.
type Client struct {
	rest        tshttp.Client
	store       auth.Store
	coordinator *auth.Coordinator
	validator   *Validator
	log         logger.Logger

	Auth        *AuthService
	Users       *UserService
	Health      *HealthService
	Accounts    *AccountService
	Trades      *TradeService
	Challenges  *ChallengeService
	Leaderboard *LeaderboardService
}

type options struct {
	log              logger.Logger
	onSessionExpired func()
	transport        nethttp.RoundTripper
	refresher        auth.Refresher
}

// Option configures a Client
type Option func(*options)

// WithLogger sets the logger shared by the client, coordinator and refresher
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithSessionExpired registers fn to run once when the session ends
func WithSessionExpired(fn func()) Option {
	return func(o *options) {
		o.onSessionExpired = fn
	}
}

// WithTransport sets the transport underneath the refresh coordinator
func WithTransport(rt nethttp.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithRefresher replaces the HTTP token refresher
func WithRefresher(r auth.Refresher) Option {
	return func(o *options) {
		o.refresher = r
	}
}

// New wires the REST client, bearer interceptor and refresh coordinator
// around store.
func New(cfg Config, store auth.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("api: credential store is required")
	}
	cfg = withDefaults(cfg)
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("api: invalid base URL %q: %w", cfg.BaseURL, err)
	}

	o := &options{log: logger.Nop(), transport: nethttp.DefaultTransport}
	for _, opt := range opts {
		opt(o)
	}

	refresher := o.refresher
	if refresher == nil {
		plain := tshttp.NewBuilder(o.log).
			WithBaseURL(cfg.BaseURL).
			WithTimeout(cfg.RefreshTimeout).
			WithRetries(0, 0).
			WithTransport(o.transport).
			Build()
		refresher = auth.NewHTTPRefresher(cfg.BaseURL, o.log,
			auth.WithRefreshPath(cfg.RefreshPath),
			auth.WithRefreshClient(plain),
		)
	}

	coordinator := auth.NewCoordinator(store, refresher,
		auth.WithBase(o.transport),
		auth.WithLogger(o.log),
		auth.WithRefreshTimeout(cfg.RefreshTimeout),
		auth.WithOnSessionExpired(o.onSessionExpired),
	)

	rest := tshttp.NewBuilder(o.log).
		WithBaseURL(cfg.BaseURL).
		WithTimeout(cfg.Timeout).
		WithRetries(cfg.MaxRetries, cfg.RetryDelay).
		WithTransport(coordinator).
		WithRequestInterceptor(auth.NewBearerInterceptor(store, o.log)).
		Build()

	c := &Client{
		rest:        rest,
		store:       store,
		coordinator: coordinator,
		validator:   NewValidator(),
		log:         o.log,
	}
	c.Auth = &AuthService{c: c}
	c.Users = &UserService{c: c}
	c.Health = &HealthService{c: c}
	c.Accounts = &AccountService{c: c}
	c.Trades = &TradeService{c: c}
	c.Challenges = &ChallengeService{c: c}
	c.Leaderboard = &LeaderboardService{c: c}
	return c, nil
}

func withDefaults(cfg Config) Config {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.RefreshPath == "" {
		cfg.RefreshPath = auth.DefaultRefreshPath
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = auth.DefaultRefreshTimeout
	}
	return cfg
}

// Store returns the credential store the client reads tokens from
func (c *Client) Store() auth.Store {
	return c.store
}

// IsAuthenticated reports whether the store holds an access token
func (c *Client) IsAuthenticated() bool {
	return c.store.IsAuthenticated()
}

// RefreshState reports the coordinator's refresh state
func (c *Client) RefreshState() auth.State {
	return c.coordinator.State()
}

// call sends body as JSON and decodes the response into out.
// Errors come back normalized.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req := &tshttp.Request{URL: withQuery(path, query)}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apierror.Normalize(fmt.Errorf("encode request: %w", err))
		}
		req.Body = data
	}

	resp, err := c.rest.Do(ctx, method, req)
	if err != nil {
		return apierror.Normalize(err)
	}

	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return apierror.Normalize(fmt.Errorf("decode %s %s response: %w", method, path, err))
	}
	return nil
}

// validate runs form validation and normalizes the result
func (c *Client) validate(form any) error {
	if err := c.validator.Validate(form); err != nil {
		return apierror.Normalize(err)
	}
	return nil
}

func withQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

func (p *ListParams) values() url.Values {
	if p == nil {
		return nil
	}
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(p.PerPage))
	}
	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, p.Filters[k])
	}
	return q
}

// resourcePath joins path segments, escaping each id
func resourcePath(base string, ids ...string) string {
	var b strings.Builder
	b.WriteString(base)
	for _, id := range ids {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(id))
	}
	return b.String()
}
