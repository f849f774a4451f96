package api

import (
	"context"
	nethttp "net/http"
)

const leaderboardPath = "/api/v1/leaderboard"

// LeaderboardService ranks traders
type LeaderboardService struct {
	c *Client
}

// Global returns one page of the overall ranking
func (s *LeaderboardService) Global(ctx context.Context, params *ListParams) (*Page[LeaderboardEntry], error) {
	return s.list(ctx, leaderboardPath, params)
}

// ByChallenge returns one page of the ranking within a challenge
func (s *LeaderboardService) ByChallenge(ctx context.Context, challengeID string, params *ListParams) (*Page[LeaderboardEntry], error) {
	return s.list(ctx, resourcePath(leaderboardPath+"/challenge", challengeID), params)
}

func (s *LeaderboardService) list(ctx context.Context, path string, params *ListParams) (*Page[LeaderboardEntry], error) {
	var page Page[LeaderboardEntry]
	if err := s.c.call(ctx, nethttp.MethodGet, path, params.values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
