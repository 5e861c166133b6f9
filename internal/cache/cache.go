// Package cache stores acquisition payloads keyed by normalized URL with
// quality-aware TTLs. Government sources that yielded rich data stay cached
// for days; thin or non-government results expire within one.
package cache

import (
	"context"
	"time"
)

// TTL tiers. Government hosts earn longer retention as extraction quality
// rises; everything else turns over daily.
const (
	TTLGovHigh   = 7 * 24 * time.Hour
	TTLGovMedium = 3 * 24 * time.Hour
	TTLGovLow    = 24 * time.Hour
	TTLNonGov    = 24 * time.Hour

	highQuality   = 0.8
	mediumQuality = 0.5
)

// Store is the cache contract the pipeline depends on. Implementations must
// never return expired payloads.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, quality float64, govHost bool) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// TTLFor maps extraction quality and host class onto a retention window.
func TTLFor(quality float64, govHost bool) time.Duration {
	if !govHost {
		return TTLNonGov
	}
	switch {
	case quality > highQuality:
		return TTLGovHigh
	case quality > mediumQuality:
		return TTLGovMedium
	default:
		return TTLGovLow
	}
}
