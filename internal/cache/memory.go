package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/telemetry"
)

const defaultCapacity = 1000

// MemoryStore is the in-process Store. Expired entries are dropped lazily on
// Get and in bulk by Sweep; when full, Set evicts the oldest entry.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]memEntry
	capacity int
	nowFn    func() time.Time
	logger   *zap.Logger
}

type memEntry struct {
	payload   []byte
	storedAt  time.Time
	expiresAt time.Time
}

// NewMemoryStore builds a MemoryStore holding at most capacity entries.
func NewMemoryStore(capacity int, logger *zap.Logger) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		entries:  make(map[string]memEntry, capacity),
		capacity: capacity,
		nowFn:    func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Get returns the payload for key if present and fresh.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		telemetry.ObserveCacheEvent("memory", "miss")
		return nil, false, nil
	}
	if s.nowFn().After(entry.expiresAt) {
		delete(s.entries, key)
		telemetry.ObserveCacheEvent("memory", "expired")
		return nil, false, nil
	}
	telemetry.ObserveCacheEvent("memory", "hit")
	return append([]byte(nil), entry.payload...), true, nil
}

// Set stores the payload under key with a quality-derived TTL.
func (s *MemoryStore) Set(_ context.Context, key string, payload []byte, quality float64, govHost bool) error {
	now := s.nowFn()
	entry := memEntry{
		payload:   append([]byte(nil), payload...),
		storedAt:  now,
		expiresAt: now.Add(TTLFor(quality, govHost)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.capacity {
		s.evictOldestLocked()
	}
	s.entries[key] = entry
	telemetry.ObserveCacheEvent("memory", "set")
	return nil
}

// Delete removes key if present.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error { return nil }

// Len reports the number of live entries, counting any not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *MemoryStore) Sweep() int {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		telemetry.ObserveCacheEvent("memory", "swept")
	}
	return removed
}

// StartSweeper runs Sweep on the given cadence until the context finishes.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.Sweep(); removed > 0 {
					s.logger.Debug("cache sweep removed expired entries", zap.Int("removed", removed))
				}
			}
		}
	}()
}

func (s *MemoryStore) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range s.entries {
		if first || entry.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.storedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(s.entries, oldestKey)
		telemetry.ObserveCacheEvent("memory", "evicted")
	}
}
