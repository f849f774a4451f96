package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tradesense/tradesense-go/auth/internal/tracking"
	tshttp "github.com/tradesense/tradesense-go/http"
	"github.com/tradesense/tradesense-go/logger"
)

const (
	// DefaultRefreshTimeout bounds one token exchange
	DefaultRefreshTimeout = 10 * time.Second

	refreshFlightKey = "refresh"

	// maxDrainBytes caps how much of a discarded 401 body is read to reuse the connection
	maxDrainBytes = 4 << 10
)

// State is the refresh state of a Coordinator
type State int32

const (
	// StateNormal means requests flow through with the current token
	StateNormal State = iota
	// StateRefreshing means a token exchange is in flight
	StateRefreshing
	// StateTerminalFailure means the last exchange failed and the session was ended
	StateTerminalFailure
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateRefreshing:
		return "refreshing"
	case StateTerminalFailure:
		return "terminal_failure"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// attempt tracks one logical request across its first send and its replay.
// The caller's request is never modified.
type attempt struct {
	request  *nethttp.Request
	retried  bool
	sentWith string
	renewed  Credentials
}

func newAttempt(req *nethttp.Request) *attempt {
	return &attempt{
		request:  req,
		sentWith: bearerToken(req.Header.Get(HeaderAuthorization)),
	}
}

// replay clones the request with a new bearer token and a rewound body
func (a *attempt) replay(accessToken string) (*nethttp.Request, error) {
	ctx := a.request.Context()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clone := a.request.Clone(ctx)
	if a.request.Body != nil && a.request.Body != nethttp.NoBody {
		if a.request.GetBody == nil {
			return nil, ErrRequestNotReplayable
		}
		body, err := a.request.GetBody()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRequestNotReplayable, err)
		}
		clone.Body = body
	}
	clone.Header.Set(HeaderAuthorization, BearerPrefix+accessToken)
	return clone, nil
}

// Coordinator is an http.RoundTripper that renews the access token on 401.
//
// A 401 on a request sent with a bearer token triggers one token exchange
// and one replay of the request with the new token. Concurrent 401s share
// the same exchange. If the exchange fails, or the replay is rejected again,
// the store is cleared, the session-expired callback fires once and the
// caller receives a session error wrapping ErrSessionExpired.
type Coordinator struct {
	base             nethttp.RoundTripper
	store            Store
	refresher        Refresher
	log              logger.Logger
	onSessionExpired func()
	refreshTimeout   time.Duration

	group singleflight.Group
	state atomic.Int32
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithBase sets the transport requests are sent with (default http.DefaultTransport)
func WithBase(base nethttp.RoundTripper) CoordinatorOption {
	return func(c *Coordinator) {
		if base != nil {
			c.base = base
		}
	}
}

// WithLogger sets the coordinator logger
func WithLogger(log logger.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// WithOnSessionExpired registers the callback run when a session ends
func WithOnSessionExpired(fn func()) CoordinatorOption {
	return func(c *Coordinator) {
		c.onSessionExpired = fn
	}
}

// WithRefreshTimeout bounds each token exchange
func WithRefreshTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.refreshTimeout = timeout
		}
	}
}

// NewCoordinator creates a coordinator over store and refresher
func NewCoordinator(store Store, refresher Refresher, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		base:           nethttp.DefaultTransport,
		store:          store,
		refresher:      refresher,
		log:            logger.Nop(),
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the current refresh state. A terminal failure reads as
// normal again once the store holds credentials from a new login.
func (c *Coordinator) State() State {
	s := State(c.state.Load())
	if s == StateTerminalFailure && c.store.IsAuthenticated() {
		return StateNormal
	}
	return s
}

// RoundTrip sends req and handles a 401 by refreshing and replaying once
func (c *Coordinator) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	at := newAttempt(req)
	ctx := req.Context()
	out := req

	for {
		resp, err := c.base.RoundTrip(out)
		if err != nil || resp.StatusCode != nethttp.StatusUnauthorized {
			return resp, err
		}

		// Anonymous requests (login, register) get the server's 401 as is.
		if at.sentWith == "" {
			return resp, nil
		}
		drain(resp)

		if at.retried {
			return nil, sessionError(c.terminate(ctx, at.renewed, ErrSessionExpired))
		}
		at.retried = true

		out, err = c.renew(ctx, at)
		if err != nil {
			return nil, err
		}
	}
}

// renew obtains fresh credentials for at and builds its replay
func (c *Coordinator) renew(ctx context.Context, at *attempt) (*nethttp.Request, error) {
	log := c.log.WithContext(ctx)

	creds, err := c.refresh(ctx, at.sentWith)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, sessionError(err)
	}

	replay, err := at.replay(creds.AccessToken)
	if err != nil {
		if errors.Is(err, ErrRequestNotReplayable) {
			log.Warn().
				Str("method", at.request.Method).
				Str("url", at.request.URL.String()).
				Msg("Token refreshed but request body cannot be replayed")
			return nil, tshttp.NewSessionError("request not replayed", err)
		}
		return nil, err
	}
	at.renewed = creds
	at.sentWith = creds.AccessToken

	tracking.RecordReplay(ctx)
	log.Debug().
		Str("method", at.request.Method).
		Str("url", at.request.URL.String()).
		Msg("Replaying request with renewed access token")
	return replay, nil
}

// refresh returns credentials newer than sentWith, running at most one
// exchange at a time for all callers.
func (c *Coordinator) refresh(ctx context.Context, sentWith string) (Credentials, error) {
	if current := c.store.Tokens(); current.IsAuthenticated() && current.AccessToken != sentWith {
		return current, nil
	}

	// The exchange outlives any single waiter but keeps request-scoped values.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshFlightKey, func() (any, error) {
		return c.exchange(detached, sentWith)
	})

	select {
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credentials{}, res.Err
		}
		return res.Val.(Credentials), nil
	}
}

// exchange runs inside the single-flight gate
func (c *Coordinator) exchange(ctx context.Context, sentWith string) (Credentials, error) {
	log := c.log.WithContext(ctx)

	// Recheck inside the flight: a just-finished exchange may already have rotated the pair.
	current := c.store.Tokens()
	if current.IsAuthenticated() && current.AccessToken != sentWith {
		return current, nil
	}

	if current.RefreshToken == "" {
		tracking.RecordRefresh(ctx, tracking.ResultNoRefreshToken, 0, ErrNoRefreshToken)
		return Credentials{}, c.terminate(ctx, current, ErrNoRefreshToken)
	}

	c.state.Store(int32(StateRefreshing))
	log.Info().Msg("Access token rejected, refreshing")

	ctx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	defer cancel()
	ctx, span := tracking.StartRefreshSpan(ctx)

	start := time.Now()
	creds, err := c.callRefresher(ctx, current.RefreshToken)
	if err == nil && !creds.IsAuthenticated() {
		err = &RefreshError{Message: "refresher returned no access token"}
	}
	elapsed := time.Since(start)

	if err != nil {
		tracking.EndRefreshSpan(span, tracking.ResultFailure, err)
		tracking.RecordRefresh(ctx, tracking.ResultFailure, elapsed, err)
		log.Warn().Err(err).Dur("elapsed", elapsed).Msg("Token refresh failed")
		return Credentials{}, c.terminate(ctx, current, err)
	}

	if creds.RefreshToken == "" {
		creds.RefreshToken = current.RefreshToken
	}
	c.store.SetTokens(creds.AccessToken, creds.RefreshToken)
	c.state.Store(int32(StateNormal))

	tracking.EndRefreshSpan(span, tracking.ResultSuccess, nil)
	tracking.RecordRefresh(ctx, tracking.ResultSuccess, elapsed, nil)
	log.Info().Dur("elapsed", elapsed).Msg("Access token refreshed")
	return creds, nil
}

// callRefresher turns a refresher panic into a failed exchange
func (c *Coordinator) callRefresher(ctx context.Context, refreshToken string) (creds Credentials, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithContext(ctx).Error().Interface("panic", r).Msg("Refresher panicked")
			creds, err = Credentials{}, &RefreshError{Message: fmt.Sprintf("refresher panicked: %v", r)}
		}
	}()
	return c.refresher.Refresh(ctx, refreshToken)
}

// terminate ends the session held in the store and returns the cause
func (c *Coordinator) terminate(ctx context.Context, held Credentials, cause error) error {
	c.state.Store(int32(StateTerminalFailure))
	if c.clearIfCurrent(held) {
		c.log.WithContext(ctx).Warn().Err(cause).Msg("Session ended, credentials cleared")
		c.notifyExpired()
	}
	return cause
}

// clearIfCurrent clears the store only while it still holds held, so a
// newer login is never wiped by a stale failure.
func (c *Coordinator) clearIfCurrent(held Credentials) bool {
	if held.IsZero() {
		return false
	}
	if cc, ok := c.store.(conditionalClearer); ok {
		return cc.ClearIf(held)
	}
	if c.store.Tokens() != held {
		return false
	}
	c.store.Clear()
	return true
}

func (c *Coordinator) notifyExpired() {
	if c.onSessionExpired == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("Session expired callback panicked")
		}
	}()
	c.onSessionExpired()
}

func sessionError(cause error) error {
	if errors.Is(cause, ErrSessionExpired) {
		return tshttp.NewSessionError("session expired", cause)
	}
	return tshttp.NewSessionError("session expired", fmt.Errorf("%w: %w", ErrSessionExpired, cause))
}

func drain(resp *nethttp.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}
