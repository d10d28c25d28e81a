// Package simulated implements a deterministic scrape adapter for
// development and tests. Outcomes are derived from the source identifier so
// every failure mode can be exercised without touching the external service.
package simulated

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

// Source prefixes that force a specific outcome.
const (
	prefixChallenge = "challenge:"
	prefixRateLimit = "ratelimit:"
	prefixError     = "error:"
)

const (
	defaultPostCount   = 3
	rateLimitResetWait = 15 * time.Minute
)

// Config controls simulated adapter behavior.
type Config struct {
	// StepDelay inserts a pause between progress increments so live UIs have
	// something to watch during demos. Zero means no delay.
	StepDelay time.Duration
}

// Adapter is the deterministic scrape.Adapter implementation.
type Adapter struct {
	cfg   Config
	clock scrape.Clock
}

// New constructs an Adapter.
func New(cfg Config, clock scrape.Clock) *Adapter {
	return &Adapter{cfg: cfg, clock: clock}
}

// Scrape produces the outcome encoded in the source identifier, reporting
// progress per generated post.
func (a *Adapter) Scrape(ctx context.Context, source string, params scrape.TaskParameters, onProgress scrape.ProgressFunc) (scrape.Outcome, error) {
	switch {
	case strings.HasPrefix(source, prefixChallenge):
		challengeType := strings.TrimPrefix(source, prefixChallenge)
		if challengeType == "" {
			challengeType = "checkpoint"
		}
		return scrape.Outcome{ChallengeRequired: true, ChallengeType: challengeType}, nil
	case strings.HasPrefix(source, prefixRateLimit):
		return scrape.Outcome{
			RateLimited:      true,
			RateLimitResetAt: a.clock.Now().Add(rateLimitResetWait),
		}, nil
	case strings.HasPrefix(source, prefixError):
		text := strings.TrimPrefix(source, prefixError)
		if text == "" {
			text = "simulated adapter error"
		}
		return scrape.Outcome{ErrorText: text}, nil
	}

	count := params.MaxPosts
	if count <= 0 {
		count = defaultPostCount
	}

	posts := make([]scrape.ResultItem, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return scrape.Outcome{}, fmt.Errorf("simulated scrape canceled: %w", err)
		}
		posts = append(posts, scrape.ResultItem{
			ID:            fmt.Sprintf("%s-post-%d", source, i+1),
			URL:           fmt.Sprintf("https://example.com/%s/p/%d", source, i+1),
			Caption:       fmt.Sprintf("Post %d from %s", i+1, source),
			LikesCount:    (i + 1) * 10,
			CommentsCount: (i + 1) * 2,
		})
		if onProgress != nil {
			onProgress((i+1)*100/count, count)
		}
		if a.cfg.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return scrape.Outcome{}, fmt.Errorf("simulated scrape canceled: %w", ctx.Err())
			case <-time.After(a.cfg.StepDelay):
			}
		}
	}
	return scrape.Outcome{Posts: posts}, nil
}
