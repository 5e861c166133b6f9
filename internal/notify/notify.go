// Package notify publishes acquisition lifecycle events so downstream
// consumers can react to completed runs.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// EventCompleted is published after an acquisition finishes.
const EventCompleted = "acquisition.completed"

// Event is the payload delivered to consumers.
type Event struct {
	Type           string    `json:"type"`
	AcquisitionID  string    `json:"acquisition_id"`
	JurisdictionID string    `json:"jurisdiction_id,omitempty"`
	Confidence     float64   `json:"confidence"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	// Publish sends one event and returns the broker-assigned message ID.
	Publish(ctx context.Context, event Event) (string, error)
	// Close releases client connections and resources.
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

// Publish discards the event.
func (Noop) Publish(context.Context, Event) (string, error) { return "", nil }

// Close does nothing.
func (Noop) Close() error { return nil }

// Memory records published events for inspection. Intended for development
// and tests.
type Memory struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemory returns an empty memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the event and returns a pseudo ID.
func (m *Memory) Publish(_ context.Context, event Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return fmt.Sprintf("memory-%d", len(m.events)), nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Close does nothing.
func (m *Memory) Close() error { return nil }
