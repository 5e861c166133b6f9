// Package fetch retrieves web pages politely: per-host pacing, robots.txt
// enforcement, bounded retries, and optional headless rendering for pages
// that require JavaScript.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrRobotsDisallowed indicates robots.txt forbids fetching the URL.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// Page is one fetched document plus transport metadata.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
	FetchedAt  time.Time
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// RetryPolicy decides whether and when a failed fetch is reattempted.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// RobotsPolicy answers whether a URL may be fetched at all.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Renderer executes a page with JavaScript enabled and returns the DOM.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (Page, error)
}

// Config controls outbound fetch behavior.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	MaxConcurrency int
	PerHostDelay   time.Duration
	RespectRobots  bool
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "permitscout-bot/0.1"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 5 * 1024 * 1024
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	return c
}
