package api

import (
	"context"
	nethttp "net/http"
)

const tradesPath = "/api/v1/trades"

// TradeService places and manages trades
type TradeService struct {
	c *Client
}

// List returns one page of trades. Filters such as account_id or status
// are passed through as query parameters.
func (s *TradeService) List(ctx context.Context, params *ListParams) (*Page[Trade], error) {
	var page Page[Trade]
	if err := s.c.call(ctx, nethttp.MethodGet, tradesPath, params.values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get returns one trade
func (s *TradeService) Get(ctx context.Context, id string) (*Trade, error) {
	return s.send(ctx, nethttp.MethodGet, resourcePath(tradesPath, id), nil)
}

// Create opens a trade
func (s *TradeService) Create(ctx context.Context, in TradeInput) (*Trade, error) {
	if err := s.c.validate(in); err != nil {
		return nil, err
	}
	return s.send(ctx, nethttp.MethodPost, tradesPath, in)
}

// Update moves the stop loss or take profit of an open trade
func (s *TradeService) Update(ctx context.Context, id string, in TradeUpdate) (*Trade, error) {
	return s.send(ctx, nethttp.MethodPut, resourcePath(tradesPath, id), in)
}

// Close closes an open trade at market
func (s *TradeService) Close(ctx context.Context, id string) (*Trade, error) {
	return s.send(ctx, nethttp.MethodPost, resourcePath(tradesPath, id)+"/close", nil)
}

func (s *TradeService) send(ctx context.Context, method, path string, body any) (*Trade, error) {
	var env Envelope[Trade]
	if err := s.c.call(ctx, method, path, nil, body, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}
