package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/telemetry"
)

// ErrHostBlocked indicates the host tripped the failure breaker earlier in
// this process and further fetches are refused.
var ErrHostBlocked = errors.New("host blocked after repeated failures")

// Client is the polite fetch entrypoint used by the pipeline and crawler.
// Every Get passes the robots gate, waits out the per-host delay, retries
// transient failures, and escalates to headless rendering when the static
// body looks JS-gated.
type Client struct {
	fetcher  Fetcher
	retry    RetryPolicy
	robots   RobotsPolicy
	limiter  *HostLimiter
	breaker  *HostBreaker
	renderer Renderer
	detector *RenderDetector
	logger   *zap.Logger
}

// NewClient wires a Client from its collaborators. Renderer and detector are
// optional; without them pages are served as fetched.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	fetcher, err := NewCollyFetcher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}
	return &Client{
		fetcher: fetcher,
		retry:   NewExponentialRetryPolicy(),
		robots:  NewRobotsEnforcer(cfg.RespectRobots, cfg.UserAgent, logger),
		limiter: NewHostLimiter(cfg.PerHostDelay),
		breaker: NewHostBreaker(0),
		logger:  logger,
	}, nil
}

// WithFetcher swaps the underlying Fetcher. Used by tests and by callers
// that already hold a configured transport.
func (c *Client) WithFetcher(f Fetcher) *Client {
	c.fetcher = f
	return c
}

// WithRetryPolicy swaps the retry policy.
func (c *Client) WithRetryPolicy(p RetryPolicy) *Client {
	c.retry = p
	return c
}

// WithRenderer enables headless escalation for JS-gated pages.
func (c *Client) WithRenderer(r Renderer, d *RenderDetector) *Client {
	c.renderer = r
	c.detector = d
	return c
}

// Get fetches one page through the full politeness stack.
func (c *Client) Get(ctx context.Context, rawURL string) (Page, error) {
	host := hostOf(rawURL)
	if c.breaker.IsBlocked(host) {
		telemetry.ObserveFetch(rawURL, "blocked", 0)
		return Page{}, fmt.Errorf("%w: %s", ErrHostBlocked, host)
	}
	if !c.robots.Allowed(ctx, rawURL) {
		telemetry.ObserveFetch(rawURL, "robots_denied", 0)
		return Page{}, fmt.Errorf("%w: %s", ErrRobotsDisallowed, rawURL)
	}
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return Page{}, err
	}

	page, err := c.fetchWithRetry(ctx, rawURL)
	if err != nil {
		if c.breaker.MarkFailure(host) {
			c.logger.Warn("host blocked after repeated failures", zap.String("host", host))
		}
		telemetry.ObserveFetch(rawURL, "error", 0)
		return Page{}, err
	}
	c.breaker.MarkSuccess(host)

	if c.renderer != nil && c.detector.NeedsRender(page) {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return Page{}, err
		}
		rendered, rerr := c.renderer.Render(ctx, rawURL)
		if rerr != nil {
			c.logger.Warn("headless escalation failed; keeping static body",
				zap.String("url", rawURL), zap.Error(rerr))
		} else {
			page = rendered
		}
	}

	telemetry.ObserveFetch(rawURL, "success", len(page.Body))
	return page, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, rawURL string) (Page, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		page, err := c.fetcher.Fetch(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !c.retry.ShouldRetry(err, attempt+1) {
			break
		}
		backoff := c.retry.Backoff(attempt)
		c.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if !sleepCtx(ctx, backoff) {
			break
		}
	}
	return Page{}, lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

