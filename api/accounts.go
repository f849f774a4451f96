package api

import (
	"context"
	nethttp "net/http"
)

const accountsPath = "/api/v1/accounts"

// AccountService manages trading accounts
type AccountService struct {
	c *Client
}

// List returns one page of the user's trading accounts
func (s *AccountService) List(ctx context.Context, params *ListParams) (*Page[TradingAccount], error) {
	var page Page[TradingAccount]
	if err := s.c.call(ctx, nethttp.MethodGet, accountsPath, params.values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get returns one trading account
func (s *AccountService) Get(ctx context.Context, id string) (*TradingAccount, error) {
	return s.send(ctx, nethttp.MethodGet, resourcePath(accountsPath, id), nil)
}

// Create opens a trading account
func (s *AccountService) Create(ctx context.Context, in TradingAccountInput) (*TradingAccount, error) {
	if err := s.c.validate(in); err != nil {
		return nil, err
	}
	return s.send(ctx, nethttp.MethodPost, accountsPath, in)
}

// Update replaces the editable fields of a trading account
func (s *AccountService) Update(ctx context.Context, id string, in TradingAccountInput) (*TradingAccount, error) {
	if err := s.c.validate(in); err != nil {
		return nil, err
	}
	return s.send(ctx, nethttp.MethodPut, resourcePath(accountsPath, id), in)
}

// Delete closes a trading account
func (s *AccountService) Delete(ctx context.Context, id string) error {
	return s.c.call(ctx, nethttp.MethodDelete, resourcePath(accountsPath, id), nil, nil, nil)
}

func (s *AccountService) send(ctx context.Context, method, path string, body any) (*TradingAccount, error) {
	var env Envelope[TradingAccount]
	if err := s.c.call(ctx, method, path, nil, body, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}
