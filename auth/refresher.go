package auth

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	tshttp "github.com/tradesense/tradesense-go/http"
	"github.com/tradesense/tradesense-go/logger"
)

// DefaultRefreshPath is the TradeSense token refresh endpoint
const DefaultRefreshPath = "/api/v1/auth/refresh"

// Refresher exchanges a refresh token for a new credential pair
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
}

// RefresherFunc adapts a function to the Refresher interface
type RefresherFunc func(ctx context.Context, refreshToken string) (Credentials, error)

// Refresh calls f
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	return f(ctx, refreshToken)
}

// HTTPRefresher calls the refresh endpoint with a plain REST client that has
// no refresh coordinator of its own.
type HTTPRefresher struct {
	client  tshttp.Client
	baseURL string
	path    string
}

// HTTPRefresherOption configures an HTTPRefresher
type HTTPRefresherOption func(*HTTPRefresher)

// WithRefreshPath overrides DefaultRefreshPath
func WithRefreshPath(path string) HTTPRefresherOption {
	return func(r *HTTPRefresher) {
		if path != "" {
			r.path = path
		}
	}
}

// WithRefreshClient replaces the REST client used for the exchange.
// The refresh path is still resolved against the refresher's base URL.
func WithRefreshClient(client tshttp.Client) HTTPRefresherOption {
	return func(r *HTTPRefresher) {
		r.client = client
	}
}

// NewHTTPRefresher creates a refresher for the API at baseURL
func NewHTTPRefresher(baseURL string, log logger.Logger, opts ...HTTPRefresherOption) *HTTPRefresher {
	r := &HTTPRefresher{baseURL: strings.TrimRight(baseURL, "/"), path: DefaultRefreshPath}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = tshttp.NewBuilder(log).
			WithBaseURL(baseURL).
			WithTimeout(DefaultRefreshTimeout).
			Build()
	}
	return r
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Data    *struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"data"`
}

// Refresh posts the refresh token both as JSON body and as bearer header.
// A response without a new refresh token keeps the current one.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Credentials, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return Credentials{}, &RefreshError{Err: err}
	}

	resp, err := r.client.Post(ctx, &tshttp.Request{
		URL:     r.target(),
		Headers: map[string]string{HeaderAuthorization: BearerPrefix + refreshToken},
		Body:    body,
	})
	if err != nil {
		if statusErr, ok := tshttp.AsStatusError(err); ok {
			return Credentials{}, &RefreshError{
				StatusCode: statusErr.StatusCode(),
				Message:    envelopeMessage(statusErr.Body()),
				Err:        err,
			}
		}
		return Credentials{}, &RefreshError{Err: err}
	}

	var env refreshEnvelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return Credentials{}, &RefreshError{StatusCode: resp.StatusCode, Message: "malformed refresh response", Err: err}
	}
	if env.Data == nil || env.Data.AccessToken == "" {
		msg := env.Message
		if msg == "" {
			msg = "refresh response carried no access token"
		}
		return Credentials{}, &RefreshError{StatusCode: resp.StatusCode, Message: msg}
	}

	creds := Credentials{AccessToken: env.Data.AccessToken, RefreshToken: env.Data.RefreshToken}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refreshToken
	}
	return creds, nil
}

// target returns the absolute refresh URL when a base URL is known
func (r *HTTPRefresher) target() string {
	if r.baseURL == "" {
		return r.path
	}
	if u, err := url.Parse(r.path); err == nil && u.IsAbs() {
		return r.path
	}
	return r.baseURL + "/" + strings.TrimLeft(r.path, "/")
}

// envelopeMessage pulls the human readable reason out of an error body
func envelopeMessage(body []byte) string {
	var env refreshEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if env.Message != "" {
			return env.Message
		}
		return env.Error
	}
	return strings.TrimSpace(string(body))
}
