package api

import (
	"context"
	nethttp "net/http"
)

const authPath = "/api/v1/auth"

type userData struct {
	User User `json:"user"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type tokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// AuthService covers registration, login and account recovery
type AuthService struct {
	c *Client
}

// Register creates an account and starts a session with the issued tokens
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*Session, error) {
	if err := s.c.validate(req); err != nil {
		return nil, err
	}
	return s.startSession(ctx, authPath+"/register", req)
}

// Login signs in and stores the issued tokens
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	if err := s.c.validate(req); err != nil {
		return nil, err
	}
	return s.startSession(ctx, authPath+"/login", req)
}

func (s *AuthService) startSession(ctx context.Context, path string, body any) (*Session, error) {
	var env Envelope[Session]
	if err := s.c.call(ctx, nethttp.MethodPost, path, nil, body, &env); err != nil {
		return nil, err
	}
	session := env.Data
	s.c.store.SetTokens(session.AccessToken, session.RefreshToken)
	s.c.log.Info().Str("user_id", session.User.ID).Msg("Session started")
	return &session, nil
}

// Logout tells the server the session is over and clears the local tokens.
// The tokens are cleared even when the server call fails.
func (s *AuthService) Logout(ctx context.Context) error {
	if !s.c.store.IsAuthenticated() {
		s.c.store.Clear()
		return nil
	}
	err := s.c.call(ctx, nethttp.MethodPost, authPath+"/logout", nil, nil, nil)
	s.c.store.Clear()
	if err != nil {
		s.c.log.Warn().Err(err).Msg("Server logout failed; local session cleared")
	}
	return nil
}

// Me returns the user the current access token belongs to
func (s *AuthService) Me(ctx context.Context) (*User, error) {
	var env Envelope[userData]
	if err := s.c.call(ctx, nethttp.MethodGet, authPath+"/me", nil, nil, &env); err != nil {
		return nil, err
	}
	return &env.Data.User, nil
}

// ForgotPassword asks the server to email a reset link
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	return s.message(ctx, authPath+"/forgot-password", emailRequest{Email: email})
}

// ResetPassword sets a new password using the emailed token
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) (string, error) {
	return s.message(ctx, authPath+"/reset-password", req)
}

// VerifyEmail confirms the address the token was sent to
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (string, error) {
	return s.message(ctx, authPath+"/verify-email", tokenRequest{Token: token})
}

// ResendVerification sends a new verification email
func (s *AuthService) ResendVerification(ctx context.Context, email string) (string, error) {
	return s.message(ctx, authPath+"/resend-verification", emailRequest{Email: email})
}

// message posts a validated form and returns the server's message
func (s *AuthService) message(ctx context.Context, path string, form any) (string, error) {
	if err := s.c.validate(form); err != nil {
		return "", err
	}
	var env Envelope[Empty]
	if err := s.c.call(ctx, nethttp.MethodPost, path, nil, form, &env); err != nil {
		return "", err
	}
	return env.Message, nil
}
