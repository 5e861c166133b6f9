// Package store persists completed acquisition results for audit and later
// lookup. The Postgres implementation keeps scalar columns for filtering
// alongside the full JSONB payload.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mrmoe28/permitscout/internal/permits"
)

// ErrNotFound signals that the requested acquisition does not exist.
var ErrNotFound = errors.New("acquisition not found")

// AcquisitionStore persists completed acquisition results.
type AcquisitionStore interface {
	// Save writes or overwrites the result keyed by its ID.
	Save(ctx context.Context, res *permits.AcquisitionResult) error
	// Get loads one full result or returns ErrNotFound.
	Get(ctx context.Context, id string) (*permits.AcquisitionResult, error)
	// List returns scalar summaries matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]AcquisitionSummary, error)
	// Close releases underlying resources.
	Close()
}

// ListFilter narrows List results. Zero values mean no constraint.
type ListFilter struct {
	JurisdictionID string
	MinConfidence  float64
	Since          time.Time
	Limit          int
	Offset         int
}

// AcquisitionSummary is the scalar row returned by List; Get returns the
// full payload.
type AcquisitionSummary struct {
	ID           string    `json:"id"`
	Jurisdiction string    `json:"jurisdiction"`
	Confidence   float64   `json:"confidence"`
	Permits      int       `json:"permits"`
	Forms        int       `json:"forms"`
	AcquiredAt   time.Time `json:"acquired_at"`
}

// Noop satisfies AcquisitionStore when no database is configured. Saves are
// dropped and lookups miss.
type Noop struct{}

// Save discards the result.
func (Noop) Save(context.Context, *permits.AcquisitionResult) error { return nil }

// Get always misses.
func (Noop) Get(context.Context, string) (*permits.AcquisitionResult, error) {
	return nil, ErrNotFound
}

// List always returns nothing.
func (Noop) List(context.Context, ListFilter) ([]AcquisitionSummary, error) { return nil, nil }

// Close is a no-op.
func (Noop) Close() {}
