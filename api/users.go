package api

import (
	"context"
	nethttp "net/http"
)

const usersPath = "/api/v1/users"

type deleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

// UserService manages the signed-in user's profile
type UserService struct {
	c *Client
}

// Profile returns the signed-in user's profile
func (s *UserService) Profile(ctx context.Context) (*User, error) {
	var env Envelope[userData]
	if err := s.c.call(ctx, nethttp.MethodGet, usersPath+"/me", nil, nil, &env); err != nil {
		return nil, err
	}
	return &env.Data.User, nil
}

// UpdateProfile changes the non-empty fields of req
func (s *UserService) UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*User, error) {
	if err := s.c.validate(req); err != nil {
		return nil, err
	}
	var env Envelope[userData]
	if err := s.c.call(ctx, nethttp.MethodPut, usersPath+"/me", nil, req, &env); err != nil {
		return nil, err
	}
	return &env.Data.User, nil
}

// ChangePassword replaces the current password
func (s *UserService) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := s.c.validate(req); err != nil {
		return err
	}
	return s.c.call(ctx, nethttp.MethodPost, usersPath+"/change-password", nil, req, nil)
}

// DeleteAccount removes the account after confirming the password and
// ends the local session.
func (s *UserService) DeleteAccount(ctx context.Context, password string) error {
	req := deleteAccountRequest{Password: password}
	if err := s.c.validate(req); err != nil {
		return err
	}
	if err := s.c.call(ctx, nethttp.MethodDelete, usersPath+"/me", nil, req, nil); err != nil {
		return err
	}
	s.c.store.Clear()
	return nil
}
