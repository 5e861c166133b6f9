// Package crawl walks a jurisdiction's site breadth-first looking for permit
// content. Outgoing links are scored for permit relevance so promising pages
// are expanded first, every page passes through extraction and form
// detection, and the per-page results are folded into one aggregate. A page
// that fails to fetch is skipped, never fatal: the crawl returns whatever the
// surviving pages produced.
package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/clock/system"
	"github.com/mrmoe28/permitscout/internal/detect"
	"github.com/mrmoe28/permitscout/internal/extract"
	"github.com/mrmoe28/permitscout/internal/fetch"
	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/telemetry"
	"github.com/mrmoe28/permitscout/internal/urlutil"
)

// Getter fetches pages. *fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (fetch.Page, error)
}

// Extractor lifts structured permit data out of one page body.
// *extract.Extractor satisfies it.
type Extractor interface {
	Extract(srcURL string, body []byte) (*extract.Content, error)
}

// Detector recognizes downloadable forms on one page body. *detect.Engine
// satisfies it; a nil Detector disables per-page form detection.
type Detector interface {
	Detect(ctx context.Context, pageURL string, body []byte) *detect.Result
}

// Clock supplies the aggregate's timestamp. system.Clock satisfies it.
type Clock interface {
	Now() time.Time
}

// Config bounds one crawl. Weights tune link relevance scoring; the defaults
// are observational, not derived, which is why they are configuration rather
// than constants.
type Config struct {
	MaxDepth     int
	MaxPages     int
	Delay        time.Duration
	LinksPerPage int
	Weights      Weights
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 25
	}
	if c.Delay <= 0 {
		c.Delay = 1500 * time.Millisecond
	}
	if c.LinksPerPage <= 0 {
		c.LinksPerPage = 10
	}
	c.Weights = c.Weights.withDefaults()
	return c
}

// Crawler explores one site at a time. It owns the politeness schedule: a
// fixed delay between consecutive fetches, regardless of what the transport
// layer additionally enforces.
type Crawler struct {
	getter    Getter
	extractor Extractor
	detector  Detector
	clock     Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Crawler from its collaborators.
func New(getter Getter, extractor Extractor, detector Detector, cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		getter:    getter,
		extractor: extractor,
		detector:  detector,
		clock:     system.New(),
		cfg:       cfg.withDefaults(),
		logger:    logger,
	}
}

type frontierEntry struct {
	url   string
	depth int
}

// Crawl explores the site at startURL breadth-first within the configured
// depth and page budgets. Each canonicalized URL is fetched at most once.
// The error return is reserved for a structurally invalid start URL; fetch
// and parse failures along the way are logged and the partial aggregate is
// still returned, as it is on context cancellation.
func (c *Crawler) Crawl(ctx context.Context, startURL string) (*permits.CrawlResult, error) {
	canon, err := urlutil.Canonicalize(startURL)
	if err != nil {
		return nil, fmt.Errorf("start url: %w", err)
	}
	host := urlutil.Host(startURL)
	if host == "" {
		return nil, fmt.Errorf("start url %q has no host", startURL)
	}

	agg := newAggregator(startURL)
	visited := map[string]struct{}{canon: {}}
	frontier := []frontierEntry{{url: startURL}}
	fetched := 0

	for len(frontier) > 0 && agg.pages() < c.cfg.MaxPages {
		entry := frontier[0]
		frontier = frontier[1:]

		if fetched > 0 {
			if err := c.pause(ctx, host); err != nil {
				c.logger.Info("crawl cancelled, returning partial aggregate",
					zap.String("start_url", startURL),
					zap.Int("pages_visited", agg.pages()))
				break
			}
		}
		fetched++

		page, err := c.getter.Get(ctx, entry.url)
		if err != nil {
			c.logger.Warn("page fetch failed, skipping",
				zap.String("url", entry.url),
				zap.Int("depth", entry.depth),
				zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		content, err := c.extractor.Extract(entry.url, page.Body)
		if err != nil {
			c.logger.Warn("page extraction failed, skipping",
				zap.String("url", entry.url), zap.Error(err))
			agg.countPage()
			continue
		}

		var det *detect.Result
		if c.detector != nil {
			det = c.detector.Detect(ctx, entry.url, page.Body)
		}
		agg.addPage(content, det)

		c.logger.Debug("page crawled",
			zap.String("url", entry.url),
			zap.Int("depth", entry.depth),
			zap.Int("links", len(content.Links)))

		if entry.depth >= c.cfg.MaxDepth {
			continue
		}
		for _, link := range c.selectLinks(host, content.Links, visited) {
			visited[link.canonical] = struct{}{}
			frontier = append(frontier, frontierEntry{url: link.url, depth: entry.depth + 1})
		}
	}

	res := agg.result(c.clock.Now())
	c.logger.Info("crawl finished",
		zap.String("start_url", startURL),
		zap.Int("pages_visited", res.PagesVisited),
		zap.Int("forms", len(res.Forms)),
		zap.Int("fees", len(res.Fees)))
	return res, nil
}

// pause enforces the inter-fetch politeness delay, returning early if the
// crawl is cancelled while waiting.
func (c *Crawler) pause(ctx context.Context, host string) error {
	timer := time.NewTimer(c.cfg.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		telemetry.ObserveRateLimitDelay(host, c.cfg.Delay)
		return nil
	}
}
