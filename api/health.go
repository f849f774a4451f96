package api

import (
	"context"
	nethttp "net/http"
)

// HealthService probes the API
type HealthService struct {
	c *Client
}

// Check calls the health endpoint. The endpoint answers with a bare
// object rather than an envelope.
func (s *HealthService) Check(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := s.c.call(ctx, nethttp.MethodGet, "/health", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
