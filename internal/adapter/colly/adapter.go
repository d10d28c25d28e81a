// Package collyadapter implements the live scrape adapter using gocolly.
package collyadapter

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/scrapedeck/scrapedeck/internal/scrape"
)

// Config controls collector behavior.
type Config struct {
	// BaseURL is the profile page root, e.g. "https://example-source.com".
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	MaxPosts  int
}

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxPosts = 50
)

// Adapter scrapes public profile pages with a Colly collector. Throttling
// responses and login interstitials are mapped onto the rate-limit and
// challenge outcomes rather than raised as errors.
type Adapter struct {
	cfg   Config
	clock scrape.Clock
}

// engagement captions look like "1,024 likes, 37 comments - ...".
var engagementPattern = regexp.MustCompile(`([\d,]+)\s+likes?,\s*([\d,]+)\s+comments?`)

// New builds an Adapter.
func New(cfg Config, clock scrape.Clock) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxPosts <= 0 {
		cfg.MaxPosts = defaultMaxPosts
	}
	return &Adapter{cfg: cfg, clock: clock}
}

// Scrape fetches the source profile page, walks its post links, and reports
// progress per collected post. Exactly one outcome shape is populated.
func (a *Adapter) Scrape(ctx context.Context, source string, params scrape.TaskParameters, onProgress scrape.ProgressFunc) (scrape.Outcome, error) {
	maxPosts := params.MaxPosts
	if maxPosts <= 0 || maxPosts > a.cfg.MaxPosts {
		maxPosts = a.cfg.MaxPosts
	}

	links, outcome, err := a.collectPostLinks(ctx, source, maxPosts)
	if err != nil {
		return scrape.Outcome{}, err
	}
	if outcome != nil {
		return *outcome, nil
	}
	if len(links) == 0 {
		return scrape.Outcome{ErrorText: fmt.Sprintf("no posts found for source %q", source)}, nil
	}

	total := len(links)
	posts := make([]scrape.ResultItem, 0, total)
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return scrape.Outcome{}, fmt.Errorf("scrape canceled: %w", err)
		}
		item, outcome, err := a.fetchPost(ctx, link)
		if err != nil {
			return scrape.Outcome{}, err
		}
		if outcome != nil {
			return *outcome, nil
		}
		posts = append(posts, item)
		if onProgress != nil {
			onProgress((i+1)*100/total, total)
		}
	}
	return scrape.Outcome{Posts: posts}, nil
}

func (a *Adapter) newCollector() *colly.Collector {
	c := colly.NewCollector(colly.Async(false))
	if a.cfg.UserAgent != "" {
		c.UserAgent = a.cfg.UserAgent
	}
	c.SetRequestTimeout(a.cfg.Timeout)
	return c
}

// collectPostLinks fetches the profile page and gathers post permalinks.
func (a *Adapter) collectPostLinks(ctx context.Context, source string, maxPosts int) ([]string, *scrape.Outcome, error) {
	collector := a.newCollector()

	var (
		links    []string
		outcome  *scrape.Outcome
		visitErr error
	)
	collector.OnHTML(`a[href*="/p/"]`, func(e *colly.HTMLElement) {
		if len(links) >= maxPosts {
			return
		}
		links = append(links, e.Request.AbsoluteURL(e.Attr("href")))
	})
	collector.OnResponse(func(r *colly.Response) {
		if o := a.classifyResponse(r); o != nil {
			outcome = o
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			if o := a.classifyResponse(r); o != nil {
				outcome = o
				return
			}
		}
		visitErr = err
	})

	url := fmt.Sprintf("%s/%s/", strings.TrimRight(a.cfg.BaseURL, "/"), source)
	if err := a.visit(ctx, collector, url); err != nil {
		return nil, nil, err
	}
	if outcome != nil {
		return nil, outcome, nil
	}
	if visitErr != nil {
		return nil, &scrape.Outcome{ErrorText: visitErr.Error()}, nil
	}
	return links, nil, nil
}

// fetchPost retrieves one post page and extracts the result item.
func (a *Adapter) fetchPost(ctx context.Context, url string) (scrape.ResultItem, *scrape.Outcome, error) {
	collector := a.newCollector()

	var (
		item     scrape.ResultItem
		outcome  *scrape.Outcome
		visitErr error
	)
	item.URL = url
	collector.OnHTML(`meta[property="og:description"]`, func(e *colly.HTMLElement) {
		content := e.Attr("content")
		item.Caption = content
		if m := engagementPattern.FindStringSubmatch(content); m != nil {
			item.LikesCount = parseCount(m[1])
			item.CommentsCount = parseCount(m[2])
		}
	})
	collector.OnHTML(`meta[property="og:url"]`, func(e *colly.HTMLElement) {
		item.ID = permalinkID(e.Attr("content"))
	})
	collector.OnResponse(func(r *colly.Response) {
		if o := a.classifyResponse(r); o != nil {
			outcome = o
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			if o := a.classifyResponse(r); o != nil {
				outcome = o
				return
			}
		}
		visitErr = err
	})

	if err := a.visit(ctx, collector, url); err != nil {
		return scrape.ResultItem{}, nil, err
	}
	if outcome != nil {
		return scrape.ResultItem{}, outcome, nil
	}
	if visitErr != nil {
		return scrape.ResultItem{}, &scrape.Outcome{ErrorText: visitErr.Error()}, nil
	}
	if item.ID == "" {
		item.ID = permalinkID(url)
	}
	return item, nil, nil
}

// classifyResponse maps throttling and login interstitials onto the
// structured outcomes. Returns nil for ordinary responses.
func (a *Adapter) classifyResponse(r *colly.Response) *scrape.Outcome {
	if r.StatusCode == http.StatusTooManyRequests {
		reset := a.clock.Now().Add(parseRetryAfter(r.Headers.Get("Retry-After")))
		return &scrape.Outcome{RateLimited: true, RateLimitResetAt: reset}
	}
	finalURL := r.Request.URL.String()
	if strings.Contains(finalURL, "/challenge/") || strings.Contains(finalURL, "/accounts/login") {
		return &scrape.Outcome{ChallengeRequired: true, ChallengeType: "checkpoint"}
	}
	return nil
}

func (a *Adapter) visit(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("scrape canceled: %w", ctx.Err())
	case err := <-done:
		// Visit errors surface through OnError with the response attached;
		// classification happens there.
		_ = err
		return nil
	}
}

func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(seconds) * time.Second
}

func parseCount(s string) int {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

func permalinkID(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
