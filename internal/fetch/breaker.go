package fetch

import (
	"strings"
	"sync"
)

const defaultBreakerThreshold = 5

// HostBreaker blocks hosts after repeated consecutive failures so a downed
// site stops consuming the crawl budget. A single success resets the count.
type HostBreaker struct {
	mu        sync.Mutex
	threshold int
	counts    map[string]int
	blocked   map[string]struct{}
}

// NewHostBreaker builds a breaker tripping after threshold consecutive
// failures per host.
func NewHostBreaker(threshold int) *HostBreaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	return &HostBreaker{
		threshold: threshold,
		counts:    make(map[string]int),
		blocked:   make(map[string]struct{}),
	}
}

// IsBlocked reports whether the host has tripped the breaker.
func (b *HostBreaker) IsBlocked(host string) bool {
	if host == "" {
		return false
	}
	key := strings.ToLower(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.blocked[key]
	return ok
}

// MarkFailure increments the failure count for host and returns true once
// the host becomes blocked.
func (b *HostBreaker) MarkFailure(host string) bool {
	if host == "" {
		return false
	}
	key := strings.ToLower(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, blocked := b.blocked[key]; blocked {
		return true
	}
	b.counts[key]++
	if b.counts[key] >= b.threshold {
		b.blocked[key] = struct{}{}
		return true
	}
	return false
}

// MarkSuccess clears the failure count for host.
func (b *HostBreaker) MarkSuccess(host string) {
	if host == "" {
		return
	}
	key := strings.ToLower(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.counts, key)
}
