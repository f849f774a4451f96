// Package fakeapi is an in-process TradeSense backend for tests and local
// demos. It issues rotating token pairs, can expire or revoke them on demand
// and counts refresh exchanges so callers can assert single-flight behavior.
package fakeapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tradesense/tradesense-go/api"
	"github.com/tradesense/tradesense-go/apierror"
	"github.com/tradesense/tradesense-go/logger"
)

// Default seeded login
const (
	DemoEmail    = "demo@tradesense.test"
	DemoPassword = "demo-password-1"
)

// Server is a fake TradeSense API
type Server struct {
	echo *echo.Echo
	log  logger.Logger
	ts   *httptest.Server

	mu         sync.Mutex
	users      map[string]*user // by email
	access     map[string]string
	refresh    map[string]string
	accounts   map[string]*api.TradingAccount
	owners     map[string]string // account id -> user id
	trades     map[string]*api.Trade
	challenges []*api.Challenge

	refreshCount  atomic.Int64
	refreshDelay  atomic.Int64
	requestCount  atomic.Int64
	unauthorized  atomic.Int64
	failRefreshes atomic.Bool
}

type user struct {
	api.User
	password string
}

// New creates a server seeded with the demo user and a few challenges
func New(log logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		log:      log,
		users:    make(map[string]*user),
		access:   make(map[string]string),
		refresh:  make(map[string]string),
		accounts: make(map[string]*api.TradingAccount),
		owners:   make(map[string]string),
		trades:   make(map[string]*api.Trade),
	}
	s.SeedUser(DemoEmail, "demo", DemoPassword)
	s.seedChallenges()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = s.errorHandler
	e.Use(s.countRequests)
	s.routes(e)
	s.echo = e
	return s
}

// Start serves the API on a random local port
func Start(log logger.Logger) *Server {
	s := New(log)
	s.ts = httptest.NewServer(s.echo)
	return s
}

// URL is the base URL of a server created with Start
func (s *Server) URL() string {
	if s.ts == nil {
		return ""
	}
	return s.ts.URL
}

// Close stops a server created with Start
func (s *Server) Close() {
	if s.ts != nil {
		s.ts.Close()
	}
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.echo
}

// ListenAndServe serves on addr until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.echo, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().Str("address", addr).Msg("Fake TradeSense API listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// SeedUser registers a verified user directly
func (s *Server) SeedUser(email, username, password string) api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	u := &user{
		User: api.User{
			ID:         uuid.NewString(),
			Username:   username,
			Email:      email,
			FirstName:  "Demo",
			LastName:   "Trader",
			Role:       "trader",
			IsActive:   true,
			IsVerified: true,
			CreatedAt:  &now,
		},
		password: password,
	}
	s.users[strings.ToLower(email)] = u
	return u.User
}

// ExpireAccessTokens invalidates every issued access token
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// RevokeRefreshTokens invalidates every issued refresh token
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// FailRefreshes makes the refresh endpoint answer 500 while on
func (s *Server) FailRefreshes(on bool) {
	s.failRefreshes.Store(on)
}

// SetRefreshDelay holds every refresh exchange for d
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// RefreshCount is the number of refresh exchanges received
func (s *Server) RefreshCount() int64 {
	return s.refreshCount.Load()
}

// RequestCount is the number of requests received
func (s *Server) RequestCount() int64 {
	return s.requestCount.Load()
}

// UnauthorizedCount is the number of requests rejected for a bad access token
func (s *Server) UnauthorizedCount() int64 {
	return s.unauthorized.Load()
}

// IsAccessTokenValid reports whether token is currently accepted
func (s *Server) IsAccessTokenValid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.access[token]
	return ok
}

// issue creates a new token pair for userID; callers hold mu
func (s *Server) issue(userID string) (string, string) {
	accessToken := "at-" + uuid.NewString()
	refreshToken := "rt-" + uuid.NewString()
	s.access[accessToken] = userID
	s.refresh[refreshToken] = userID
	return accessToken, refreshToken
}

func (s *Server) countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		s.requestCount.Add(1)
		return next(c)
	}
}

// requireAuth resolves the bearer access token to a user id
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
		s.mu.Lock()
		userID, ok := s.access[token]
		s.mu.Unlock()
		if !ok {
			s.unauthorized.Add(1)
			return c.JSON(http.StatusUnauthorized, failure("AuthenticationError", "Token has expired"))
		}
		c.Set(userIDKey, userID)
		return next(c)
	}
}

const userIDKey = "user_id"

func currentUserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Error   string              `json:"error,omitempty"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

func success(message string, data any) envelope {
	return envelope{Success: true, Message: message, Data: data}
}

func failure(code, message string) envelope {
	return envelope{Error: code, Message: message}
}

func validationFailure(fields apierror.FieldErrors) envelope {
	return envelope{Error: "ValidationError", Message: "Validation failed", Errors: fields}
}

// bind decodes and validates the body into form
func bind(c echo.Context, form any) error {
	if err := c.Bind(form); err != nil {
		return err
	}
	return c.Validate(form)
}

// errorHandler renders every failure as an envelope
func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var fields apierror.FieldErrors
	if errors.As(err, &fields) {
		_ = c.JSON(http.StatusBadRequest, validationFailure(fields))
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		_ = c.JSON(he.Code, failure("HTTPError", msg))
		return
	}
	s.log.Error().Err(err).Str("path", c.Path()).Msg("Fake API handler failed")
	_ = c.JSON(http.StatusInternalServerError, failure("ServerError", "Internal server error"))
}
