package auth

import (
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tradesense/tradesense-go/auth/internal/tracking"
	tshttp "github.com/tradesense/tradesense-go/http"
	"github.com/tradesense/tradesense-go/logger"
)

const concurrentRequests = 10

// tokenAPI accepts exactly one access token and rejects everything else with 401
type tokenAPI struct {
	server       *httptest.Server
	valid        atomic.Value
	unauthorized atomic.Int32
	authorized   atomic.Int32
}

func newTokenAPI(t *testing.T, valid string) *tokenAPI {
	t.Helper()
	api := &tokenAPI{}
	api.valid.Store(valid)

	api.server = httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get(HeaderAuthorization) != BearerPrefix+api.valid.Load().(string) {
			api.unauthorized.Add(1)
			w.WriteHeader(nethttp.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false,"message":"Token expired"}`))
			return
		}
		api.authorized.Add(1)
		body, _ := io.ReadAll(r.Body)
		if len(body) == 0 {
			body = []byte(`{"success":true}`)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(api.server.Close)
	return api
}

// countingRefresher wraps a refresh function, counting calls and
// optionally holding each call until released.
type countingRefresher struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
	fn      func(refreshToken string) (Credentials, error)
}

func newCountingRefresher(fn func(refreshToken string) (Credentials, error)) *countingRefresher {
	return &countingRefresher{fn: fn, entered: make(chan struct{}, 64)}
}

func (r *countingRefresher) held() *countingRefresher {
	r.release = make(chan struct{})
	return r
}

func (r *countingRefresher) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	r.calls.Add(1)
	r.entered <- struct{}{}
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return Credentials{}, ctx.Err()
		}
	}
	return r.fn(refreshToken)
}

func rotateTo(access, refresh string) func(string) (Credentials, error) {
	return func(string) (Credentials, error) {
		return Credentials{AccessToken: access, RefreshToken: refresh}, nil
	}
}

func rejectRefresh(string) (Credentials, error) {
	return Credentials{}, &RefreshError{StatusCode: nethttp.StatusUnauthorized, Message: "Refresh token revoked"}
}

type expiryCounter struct{ n atomic.Int32 }

func (c *expiryCounter) callback() func() {
	return func() { c.n.Add(1) }
}

func newAuthedClient(api *tokenAPI, store Store, coordinator *Coordinator) tshttp.Client {
	return tshttp.NewBuilder(logger.Nop()).
		WithBaseURL(api.server.URL).
		WithRetries(0, 0).
		WithTransport(coordinator).
		WithRequestInterceptor(NewBearerInterceptor(store, nil)).
		Build()
}

func loggedInStore() *MemoryStore {
	store := NewMemoryStore()
	store.SetTokens(testAccess1, testRefresh1)
	return store
}

func TestCoordinatorPassesThroughAuthorizedRequests(t *testing.T) {
	api := newTokenAPI(t, testAccess1)
	store := loggedInStore()
	refresher := newCountingRefresher(rotateTo(testAccess2, testRefresh2))
	client := newAuthedClient(api, store, NewCoordinator(store, refresher))

	resp, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/users/me"})
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Zero(t, refresher.calls.Load())
}

func TestCoordinatorRefreshesAndReplays(t *testing.T) {
	api := newTokenAPI(t, testAccess2)
	store := loggedInStore()

	var gotRefreshToken string
	refresher := newCountingRefresher(func(rt string) (Credentials, error) {
		gotRefreshToken = rt
		return Credentials{AccessToken: testAccess2, RefreshToken: testRefresh2}, nil
	})
	var expired expiryCounter
	coordinator := NewCoordinator(store, refresher, WithOnSessionExpired(expired.callback()))
	client := newAuthedClient(api, store, coordinator)

	payload := []byte(`{"symbol":"EURUSD","side":"buy"}`)
	resp, err := client.Post(context.Background(), &tshttp.Request{URL: "/api/v1/trades", Body: payload})
	require.NoError(t, err)

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, resp.Body, "replay carries the original body")
	assert.Equal(t, testRefresh1, gotRefreshToken)
	assert.Equal(t, Credentials{AccessToken: testAccess2, RefreshToken: testRefresh2}, store.Tokens())
	assert.EqualValues(t, 1, refresher.calls.Load())
	assert.EqualValues(t, 1, api.unauthorized.Load())
	assert.EqualValues(t, 1, api.authorized.Load())
	assert.Zero(t, expired.n.Load())
	assert.Equal(t, StateNormal, coordinator.State())
}

func TestCoordinatorKeepsRefreshTokenWhenNotRotated(t *testing.T) {
	api := newTokenAPI(t, testAccess2)
	store := loggedInStore()
	client := newAuthedClient(api, store, NewCoordinator(store, newCountingRefresher(rotateTo(testAccess2, ""))))

	_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/accounts"})
	require.NoError(t, err)
	assert.Equal(t, Credentials{AccessToken: testAccess2, RefreshToken: testRefresh1}, store.Tokens())
}

func TestCoordinatorConcurrent401sShareOneRefresh(t *testing.T) {
	api := newTokenAPI(t, testAccess2)
	store := loggedInStore()
	refresher := newCountingRefresher(rotateTo(testAccess2, testRefresh2)).held()
	coordinator := NewCoordinator(store, refresher)
	client := newAuthedClient(api, store, coordinator)

	var wg sync.WaitGroup
	errs := make(chan error, concurrentRequests)
	for i := 0; i < concurrentRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/challenges"})
			errs <- err
		}()
	}

	<-refresher.entered
	assert.Equal(t, StateRefreshing, coordinator.State())
	require.Eventually(t, func() bool {
		return api.unauthorized.Load() == concurrentRequests
	}, 5*time.Second, 5*time.Millisecond)
	close(refresher.release)

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.EqualValues(t, 1, refresher.calls.Load())
	assert.EqualValues(t, concurrentRequests, api.authorized.Load())
	assert.Equal(t, testAccess2, store.Tokens().AccessToken)
}

func TestCoordinatorUsesTokenRotatedByEarlierRefresh(t *testing.T) {
	api := newTokenAPI(t, testAccess2)
	store := loggedInStore()
	refresher := newCountingRefresher(rotateTo(testAccess2, testRefresh2))
	coordinator := NewCoordinator(store, refresher, WithBase(
		roundTripperFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
			// Another request finishes the refresh while this one is in flight.
			store.SetTokens(testAccess2, testRefresh2)
			return nethttp.DefaultTransport.RoundTrip(req)
		}),
	))
	client := newAuthedClient(api, store, coordinator)

	_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/leaderboard"})
	require.NoError(t, err)
	assert.Zero(t, refresher.calls.Load())
}

func TestCoordinatorReplayRejectedEndsSession(t *testing.T) {
	api := newTokenAPI(t, "never-valid")
	store := loggedInStore()
	refresher := newCountingRefresher(rotateTo(testAccess2, testRefresh2))
	var expired expiryCounter
	coordinator := NewCoordinator(store, refresher, WithOnSessionExpired(expired.callback()))
	client := newAuthedClient(api, store, coordinator)

	_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/users/me"})
	require.Error(t, err)

	assert.True(t, tshttp.IsErrorType(err, tshttp.SessionError))
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.EqualValues(t, 1, refresher.calls.Load(), "a rejected replay is not refreshed again")
	assert.EqualValues(t, 2, api.unauthorized.Load())
	assert.False(t, store.IsAuthenticated())
	assert.EqualValues(t, 1, expired.n.Load())
	assert.Equal(t, StateTerminalFailure, coordinator.State())
}

func TestCoordinatorRefreshFailureFailsEveryWaiter(t *testing.T) {
	api := newTokenAPI(t, testAccess2)
	store := loggedInStore()
	refresher := newCountingRefresher(rejectRefresh).held()
	var expired expiryCounter
	coordinator := NewCoordinator(store, refresher, WithOnSessionExpired(expired.callback()))
	client := newAuthedClient(api, store, coordinator)

	var wg sync.WaitGroup
	errs := make(chan error, concurrentRequests)
	for i := 0; i < concurrentRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/accounts"})
			errs <- err
		}()
	}

	require.Eventually(t, func() bool {
		return api.unauthorized.Load() == concurrentRequests
	}, 5*time.Second, 5*time.Millisecond)
	close(refresher.release)

	wg.Wait()
	close(errs)
	for err := range errs {
		require.Error(t, err)
		assert.True(t, tshttp.IsErrorType(err, tshttp.SessionError))
		assert.ErrorIs(t, err, ErrSessionExpired)
	}

	assert.EqualValues(t, 1, refresher.calls.Load())
	assert.EqualValues(t, 1, expired.n.Load())
	assert.True(t, store.Tokens().IsZero())
	assert.Zero(t, api.authorized.Load())

	var refreshErr *RefreshError
	_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/accounts"})
	require.Error(t, err)
	assert.False(t, errors.As(err, &refreshErr), "requests after logout are plain 401s")
	assert.True(t, tshttp.IsHTTPStatusError(err, nethttp.StatusUnauthorized))
}

func TestCoordinatorWithoutRefreshToken(t *testing.T) {
	api := newTokenAPI(t, testAccess2)
	store := NewMemoryStore()
	store.SetTokens(testAccess1, "")
	refresher := newCountingRefresher(rotateTo(testAccess2, testRefresh2))
	var expired expiryCounter
	client := newAuthedClient(api, store, NewCoordinator(store, refresher, WithOnSessionExpired(expired.callback())))

	_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/users/me"})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrNoRefreshToken)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.Zero(t, refresher.calls.Load())
	assert.False(t, store.IsAuthenticated())
	assert.EqualValues(t, 1, expired.n.Load())
}

func TestCoordinatorAnonymous401IsReturnedAsIs(t *testing.T) {
	api := newTokenAPI(t, testAccess1)
	store := NewMemoryStore()
	refresher := newCountingRefresher(rotateTo(testAccess2, testRefresh2))
	var expired expiryCounter
	client := newAuthedClient(api, store, NewCoordinator(store, refresher, WithOnSessionExpired(expired.callback())))

	resp, err := client.Post(context.Background(), &tshttp.Request{URL: "/api/v1/auth/login", Body: []byte(`{"email":"a@b.c","password":"wrong"}`)})
	require.Error(t, err)

	assert.True(t, tshttp.IsHTTPStatusError(err, nethttp.StatusUnauthorized))
	require.NotNil(t, resp)
	assert.Contains(t, string(resp.Body), "Token expired")
	assert.Zero(t, refresher.calls.Load())
	assert.Zero(t, expired.n.Load())
}

func TestCoordinatorStaleFailureKeepsNewerLogin(t *testing.T) {
	api := newTokenAPI(t, "A9")
	store := loggedInStore()
	refresher := newCountingRefresher(rejectRefresh).held()
	var expired expiryCounter
	coordinator := NewCoordinator(store, refresher, WithOnSessionExpired(expired.callback()))
	client := newAuthedClient(api, store, coordinator)

	done := make(chan error, 1)
	go func() {
		_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/users/me"})
		done <- err
	}()

	<-refresher.entered
	store.SetTokens("A9", "R9")
	close(refresher.release)

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)

	assert.Equal(t, Credentials{AccessToken: "A9", RefreshToken: "R9"}, store.Tokens())
	assert.Zero(t, expired.n.Load())
	assert.Equal(t, StateNormal, coordinator.State())
}

func TestCoordinatorCanceledWaiter(t *testing.T) {
	api := newTokenAPI(t, testAccess2)
	store := loggedInStore()
	refresher := newCountingRefresher(rotateTo(testAccess2, testRefresh2)).held()
	var expired expiryCounter
	client := newAuthedClient(api, store, NewCoordinator(store, refresher, WithOnSessionExpired(expired.callback())))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Get(ctx, &tshttp.Request{URL: "/api/v1/trades"})
		done <- err
	}()

	<-refresher.entered
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, tshttp.IsErrorType(err, tshttp.SessionError))
	case <-time.After(5 * time.Second):
		t.Fatal("canceled request did not return")
	}

	// The exchange itself is not canceled with its first waiter.
	close(refresher.release)
	require.Eventually(t, func() bool {
		return store.Tokens().AccessToken == testAccess2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Zero(t, expired.n.Load())
}

func TestCoordinatorRefreshTimeout(t *testing.T) {
	api := newTokenAPI(t, testAccess2)
	store := loggedInStore()
	refresher := newCountingRefresher(rotateTo(testAccess2, testRefresh2)).held()
	var expired expiryCounter
	coordinator := NewCoordinator(store, refresher,
		WithRefreshTimeout(20*time.Millisecond),
		WithOnSessionExpired(expired.callback()),
	)
	client := newAuthedClient(api, store, coordinator)

	_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/users/me"})
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, store.IsAuthenticated())
	assert.EqualValues(t, 1, expired.n.Load())
}

func TestCoordinatorNonReplayableBody(t *testing.T) {
	store := loggedInStore()
	refresher := newCountingRefresher(rotateTo(testAccess2, testRefresh2))
	var expired expiryCounter

	var sends atomic.Int32
	coordinator := NewCoordinator(store, refresher,
		WithOnSessionExpired(expired.callback()),
		WithBase(roundTripperFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
			sends.Add(1)
			return &nethttp.Response{
				StatusCode: nethttp.StatusUnauthorized,
				Body:       io.NopCloser(strings.NewReader("")),
				Request:    req,
			}, nil
		})),
	)

	req, err := nethttp.NewRequestWithContext(context.Background(), nethttp.MethodPost,
		"https://api.tradesense.test/api/v1/trades", io.NopCloser(strings.NewReader(`{"qty":1}`)))
	require.NoError(t, err)
	require.Nil(t, req.GetBody)
	req.Header.Set(HeaderAuthorization, "Bearer A1")

	resp, err := coordinator.RoundTrip(req)
	require.Error(t, err)
	assert.Nil(t, resp)

	assert.ErrorIs(t, err, ErrRequestNotReplayable)
	assert.True(t, tshttp.IsErrorType(err, tshttp.SessionError))
	assert.EqualValues(t, 1, sends.Load())
	assert.Equal(t, testAccess2, store.Tokens().AccessToken, "the refresh itself succeeded")
	assert.Zero(t, expired.n.Load())
}

func TestCoordinatorDoesNotModifyCallerRequest(t *testing.T) {
	store := loggedInStore()
	var seen []string
	coordinator := NewCoordinator(store, newCountingRefresher(rotateTo(testAccess2, testRefresh2)),
		WithBase(roundTripperFunc(func(req *nethttp.Request) (*nethttp.Response, error) {
			seen = append(seen, req.Header.Get(HeaderAuthorization))
			status := nethttp.StatusOK
			if req.Header.Get(HeaderAuthorization) == "Bearer A1" {
				status = nethttp.StatusUnauthorized
			}
			return &nethttp.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Request: req}, nil
		})),
	)

	req, err := nethttp.NewRequestWithContext(context.Background(), nethttp.MethodGet, "https://api.tradesense.test/api/v1/users/me", nethttp.NoBody)
	require.NoError(t, err)
	req.Header.Set(HeaderAuthorization, "Bearer A1")

	resp, err := coordinator.RoundTrip(req)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer A1", "Bearer A2"}, seen)
	assert.Equal(t, "Bearer A1", req.Header.Get(HeaderAuthorization))
}

func TestCoordinatorTransportErrorPassesThrough(t *testing.T) {
	store := loggedInStore()
	refresher := newCountingRefresher(rotateTo(testAccess2, testRefresh2))
	boom := errors.New("connection reset")
	coordinator := NewCoordinator(store, refresher, WithBase(roundTripperFunc(func(*nethttp.Request) (*nethttp.Response, error) {
		return nil, boom
	})))

	req, err := nethttp.NewRequestWithContext(context.Background(), nethttp.MethodGet, "https://api.tradesense.test/", nethttp.NoBody)
	require.NoError(t, err)
	req.Header.Set(HeaderAuthorization, "Bearer A1")

	_, err = coordinator.RoundTrip(req)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, refresher.calls.Load())
}

func TestCoordinatorExpiredCallbackPanicIsContained(t *testing.T) {
	var buf bytes.Buffer
	api := newTokenAPI(t, testAccess2)
	store := loggedInStore()
	coordinator := NewCoordinator(store, newCountingRefresher(rejectRefresh),
		WithLogger(logger.NewWithWriter(&buf, "info", false)),
		WithOnSessionExpired(func() { panic("ui gone") }),
	)
	client := newAuthedClient(api, store, coordinator)

	assert.NotPanics(t, func() {
		_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/users/me"})
		assert.ErrorIs(t, err, ErrSessionExpired)
	})
	assert.Contains(t, buf.String(), "Session expired callback panicked")
	assert.NotContains(t, buf.String(), testRefresh1)
}

func TestCoordinatorRefresherPanicEndsSession(t *testing.T) {
	var buf bytes.Buffer
	api := newTokenAPI(t, testAccess2)
	store := loggedInStore()
	var expired expiryCounter
	coordinator := NewCoordinator(store, RefresherFunc(func(context.Context, string) (Credentials, error) {
		panic("refresher bug")
	}),
		WithLogger(logger.NewWithWriter(&buf, "info", false)),
		WithOnSessionExpired(expired.callback()),
	)
	client := newAuthedClient(api, store, coordinator)

	assert.NotPanics(t, func() {
		_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/users/me"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSessionExpired)

		var refreshErr *RefreshError
		require.True(t, errors.As(err, &refreshErr))
		assert.Contains(t, refreshErr.Message, "refresher bug")
	})
	assert.Contains(t, buf.String(), "Refresher panicked")
	assert.False(t, store.IsAuthenticated())
	assert.EqualValues(t, 1, expired.n.Load())
	assert.Equal(t, StateTerminalFailure, coordinator.State())
}

func TestCoordinatorRecordsRefreshSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})

	api := newTokenAPI(t, testAccess2)
	store := loggedInStore()
	client := newAuthedClient(api, store, NewCoordinator(store, newCountingRefresher(rotateTo(testAccess2, testRefresh2))))

	_, err := client.Get(context.Background(), &tshttp.Request{URL: "/api/v1/users/me"})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, tracking.SpanRefresh, spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "normal", StateNormal.String())
	assert.Equal(t, "refreshing", StateRefreshing.String())
	assert.Equal(t, "terminal_failure", StateTerminalFailure.String())
	assert.Equal(t, "state(7)", State(7).String())
}
