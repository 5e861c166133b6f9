// Package discover resolves a jurisdiction's web presence with no prior
// knowledge of its domain: it generates candidate government URLs from the
// jurisdiction's name, batch-validates them with lightweight existence
// checks, and locates permit portals on the confirmed site. Exhausting every
// strategy without a hit is a normal outcome, not an error.
package discover

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/fetch"
	"github.com/mrmoe28/permitscout/internal/permits"
)

// Prober issues the HEAD-equivalent existence checks behind candidate
// validation. *fetch.CollyFetcher satisfies it.
type Prober interface {
	Head(ctx context.Context, rawURL string) (fetch.Page, error)
}

// Getter fetches full pages for portal link scanning and classification.
// *fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (fetch.Page, error)
}

// Config bounds the validation fan-out.
type Config struct {
	MaxParallelProbes int
	ProbeTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxParallelProbes <= 0 {
		c.MaxParallelProbes = 8
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	return c
}

// Discoverer generates, validates, and classifies candidate URLs for a
// jurisdiction.
type Discoverer struct {
	prober Prober
	getter Getter
	cfg    Config
	logger *zap.Logger
}

// New constructs a Discoverer from its collaborators.
func New(prober Prober, getter Getter, cfg Config, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{prober: prober, getter: getter, cfg: cfg.withDefaults(), logger: logger}
}

// ResolveWebsite finds the jurisdiction's website: a known website is
// revalidated first, then generated candidates are probed in order. The
// first accessible candidate wins with no further scoring. The false return
// means every candidate was exhausted, which callers treat as a normal
// outcome.
func (d *Discoverer) ResolveWebsite(ctx context.Context, j *permits.Jurisdiction) (Validated, bool) {
	candidates := Candidates(j)
	if j.Website != "" {
		candidates = append([]string{j.Website}, candidates...)
	}
	if len(candidates) == 0 {
		return Validated{}, false
	}

	accessible := d.ValidateBatch(ctx, candidates)
	if len(accessible) == 0 {
		d.logger.Info("no accessible website candidate",
			zap.String("jurisdiction", j.Name),
			zap.Int("candidates", len(candidates)))
		return Validated{}, false
	}

	d.logger.Info("resolved jurisdiction website",
		zap.String("jurisdiction", j.Name),
		zap.String("url", accessible[0].URL),
		zap.Int("candidates", len(candidates)),
		zap.Int("accessible", len(accessible)))
	return accessible[0], true
}
