package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creatorpay/internal/config"
)

const submissionKeyPrefix = "creatorpay:runs:submit:"

// RunSubmissionLimiter throttles how often one client may start reward runs.
// A nil limiter allows everything, which is what callers get when rate
// limiting is off or no redis is configured.
type RunSubmissionLimiter struct {
	bucket *TokenBucket
}

func NewRunSubmissionLimiter(cfg config.Config, client *redis.Client) (*RunSubmissionLimiter, error) {
	if !cfg.RateLimit.Enabled || client == nil {
		return nil, nil
	}
	bucket, err := NewTokenBucket(client, cfg.RateLimit.Rate, cfg.RateLimit.Burst)
	if err != nil {
		return nil, err
	}
	return &RunSubmissionLimiter{bucket: bucket}, nil
}

func (l *RunSubmissionLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow charges one run submission to client, usually the caller's IP.
func (l *RunSubmissionLimiter) Allow(ctx context.Context, client string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, submissionKey(client))
}

func submissionKey(client string) string {
	client = strings.TrimSpace(client)
	if client == "" {
		client = "anonymous"
	}
	return submissionKeyPrefix + client
}
