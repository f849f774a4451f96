package api

import (
	"context"
	nethttp "net/http"
)

const challengesPath = "/api/v1/challenges"

// ChallengeService lists evaluation challenges and enrolls in them
type ChallengeService struct {
	c *Client
}

// List returns one page of challenges
func (s *ChallengeService) List(ctx context.Context, params *ListParams) (*Page[Challenge], error) {
	var page Page[Challenge]
	if err := s.c.call(ctx, nethttp.MethodGet, challengesPath, params.values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Get returns one challenge
func (s *ChallengeService) Get(ctx context.Context, id string) (*Challenge, error) {
	var env Envelope[Challenge]
	if err := s.c.call(ctx, nethttp.MethodGet, resourcePath(challengesPath, id), nil, nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// Enroll signs the user up for a challenge
func (s *ChallengeService) Enroll(ctx context.Context, id string) (*Challenge, error) {
	var env Envelope[Challenge]
	if err := s.c.call(ctx, nethttp.MethodPost, resourcePath(challengesPath, id)+"/enroll", nil, nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}
