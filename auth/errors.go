package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired is wrapped by every error that ends the session
	ErrSessionExpired = errors.New("session expired")

	// ErrNoRefreshToken means a refresh was needed but the store held no refresh token
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrRequestNotReplayable means the request body could not be rewound for replay
	ErrRequestNotReplayable = errors.New("request body cannot be replayed")

	// ErrNoCredentials is returned by a Persister holding no credentials
	ErrNoCredentials = errors.New("no stored credentials")
)

// RefreshError reports a token exchange rejected or failed by the auth server
type RefreshError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *RefreshError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("token refresh failed (status: %d): %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("token refresh failed (status: %d)", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	default:
		return "token refresh failed"
	}
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
