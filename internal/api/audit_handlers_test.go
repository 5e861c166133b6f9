package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrmoe28/permitscout/internal/config"
	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/store"
)

func TestGetAcquisitionReturnsStoredResult(t *testing.T) {
	t.Parallel()

	auditStore := &mockAuditStore{
		result: &permits.AcquisitionResult{
			ID:         "acq-42",
			Confidence: 0.8,
			AcquiredAt: time.Unix(200, 0).UTC(),
		},
	}
	server := newTestServerWith(t, &fakeAcquirer{}, auditStore, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/acquisitions/acq-42", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "acq-42")
	require.Equal(t, "acq-42", auditStore.lastGetID)
}

func TestGetAcquisitionNotFound(t *testing.T) {
	t.Parallel()

	auditStore := &mockAuditStore{getErr: store.ErrNotFound}
	server := newTestServerWith(t, &fakeAcquirer{}, auditStore, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/acquisitions/missing", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAcquisitionStoreFailure(t *testing.T) {
	t.Parallel()

	auditStore := &mockAuditStore{getErr: errors.New("boom")}
	server := newTestServerWith(t, &fakeAcquirer{}, auditStore, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/acquisitions/acq-1", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListAcquisitionsParsesFilters(t *testing.T) {
	t.Parallel()

	auditStore := &mockAuditStore{
		items: []store.AcquisitionSummary{
			{ID: "acq-1", Jurisdiction: "Springfield", Confidence: 0.8},
		},
	}
	server := newTestServerWith(t, &fakeAcquirer{}, auditStore, config.Config{})

	target := "/v1/acquisitions?jurisdiction=springfield-il&min_confidence=0.5&since=2026-01-02T00:00:00Z&limit=10&offset=5"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Springfield")

	require.Equal(t, "springfield-il", auditStore.lastFilter.JurisdictionID)
	require.InDelta(t, 0.5, auditStore.lastFilter.MinConfidence, 1e-9)
	require.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), auditStore.lastFilter.Since)
	require.Equal(t, 10, auditStore.lastFilter.Limit)
	require.Equal(t, 5, auditStore.lastFilter.Offset)
}

func TestListAcquisitionsInvalidParams(t *testing.T) {
	t.Parallel()

	server := newTestServerWith(t, &fakeAcquirer{}, &mockAuditStore{}, config.Config{})

	for _, query := range []string{
		"limit=-1",
		"limit=abc",
		"offset=-2",
		"min_confidence=2",
		"since=yesterday",
	} {
		req := httptest.NewRequest(http.MethodGet, "/v1/acquisitions?"+query, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		require.Equalf(t, http.StatusBadRequest, rec.Code, "query %q", query)
	}
}

func TestListAcquisitionsEmptyIsArray(t *testing.T) {
	t.Parallel()

	server := newTestServerWith(t, &fakeAcquirer{}, &mockAuditStore{}, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/acquisitions", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"acquisitions":[]`)
}

func TestListAcquisitionsClampsLimit(t *testing.T) {
	t.Parallel()

	auditStore := &mockAuditStore{}
	server := newTestServerWith(t, &fakeAcquirer{}, auditStore, config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/acquisitions?limit=9999", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxListLimit, auditStore.lastFilter.Limit)
}

type mockAuditStore struct {
	result  *permits.AcquisitionResult
	items   []store.AcquisitionSummary
	getErr  error
	listErr error

	lastGetID  string
	lastFilter store.ListFilter
	saved      []*permits.AcquisitionResult
}

func (m *mockAuditStore) Save(_ context.Context, res *permits.AcquisitionResult) error {
	m.saved = append(m.saved, res)
	return nil
}

func (m *mockAuditStore) Get(_ context.Context, id string) (*permits.AcquisitionResult, error) {
	m.lastGetID = id
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.result == nil {
		return nil, store.ErrNotFound
	}
	return m.result, nil
}

func (m *mockAuditStore) List(_ context.Context, filter store.ListFilter) ([]store.AcquisitionSummary, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.items, nil
}

func (m *mockAuditStore) Close() {}
