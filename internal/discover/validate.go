package discover

import (
	"context"
	"net/url"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrmoe28/permitscout/internal/telemetry"
)

// Validated is one candidate URL that answered an existence check with a
// success status.
type Validated struct {
	URL      string `json:"url"`
	FinalURL string `json:"final_url"`
	Status   int    `json:"status"`
}

// ValidateBatch probes every candidate concurrently through a bounded worker
// pool and returns the accessible ones in candidate order. A failing
// candidate never blocks the others.
func (d *Discoverer) ValidateBatch(ctx context.Context, candidates []string) []Validated {
	results := make([]*Validated, len(candidates))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.MaxParallelProbes)
	for i, candidate := range candidates {
		g.Go(func() error {
			if _, err := url.ParseRequestURI(candidate); err != nil {
				telemetry.ObserveDiscovery("invalid")
				return nil
			}

			probeCtx, cancel := context.WithTimeout(gCtx, d.cfg.ProbeTimeout)
			defer cancel()
			page, err := d.prober.Head(probeCtx, candidate)
			if err != nil {
				telemetry.ObserveDiscovery("inaccessible")
				d.logger.Debug("candidate probe failed",
					zap.String("url", candidate), zap.Error(err))
				return nil
			}
			if page.StatusCode < 200 || page.StatusCode >= 300 {
				telemetry.ObserveDiscovery("inaccessible")
				return nil
			}

			telemetry.ObserveDiscovery("accessible")
			results[i] = &Validated{
				URL:      candidate,
				FinalURL: page.FinalURL,
				Status:   page.StatusCode,
			}
			return nil
		})
	}
	_ = g.Wait()

	accessible := make([]Validated, 0, len(candidates))
	for _, r := range results {
		if r != nil {
			accessible = append(accessible, *r)
		}
	}
	return accessible
}
