package api

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/config"
	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/pipeline"
	"github.com/mrmoe28/permitscout/internal/store"
	"github.com/mrmoe28/permitscout/internal/telemetry"
)

func TestServerRunAcquisitionSucceeds(t *testing.T) {
	t.Parallel()

	acq := &fakeAcquirer{
		result: &permits.AcquisitionResult{
			ID:         "acq-1",
			Confidence: 0.7,
			AcquiredAt: time.Unix(100, 0).UTC(),
		},
	}
	server := newTestServerWith(t, acq, store.Noop{}, config.Config{})

	reqBody := []byte(`{
		"jurisdiction": {"name": "Springfield", "website": "https://springfield.gov"},
		"address": {"street": "123 Main St", "city": "Springfield", "state": "IL", "zip": "62701"},
		"options": {"max_documents": 2, "bypass_cache": true}
	}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/acquisitions", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "acq-1")

	require.NotNil(t, acq.lastJurisdiction)
	require.Equal(t, "Springfield", acq.lastJurisdiction.Name)
	require.Equal(t, "https://springfield.gov", acq.lastJurisdiction.Website)
	require.NotNil(t, acq.lastAddress)
	require.Equal(t, "Springfield", acq.lastAddress.City)
	require.Equal(t, 2, acq.lastOptions.MaxDocuments)
	require.True(t, acq.lastOptions.BypassCache)
}

func TestServerRunAcquisitionInvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/acquisitions", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerRunAcquisitionRejectedInput(t *testing.T) {
	t.Parallel()

	acq := &fakeAcquirer{err: errors.New("pipeline: jurisdiction needs a name or a website")}
	server := newTestServerWith(t, acq, store.Noop{}, config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/acquisitions", bytes.NewBufferString(`{"jurisdiction":{}}`))
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "needs a name or a website")
}

func TestServerHealthAndReadiness(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ready")
}

func TestServerReadinessWithoutPipeline(t *testing.T) {
	t.Parallel()

	server := newTestServerWith(t, nil, store.Noop{}, config.Config{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServerAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Auth: config.AuthConfig{Enabled: true, APIKey: "secret"},
	}
	server := newTestServerWith(t, &fakeAcquirer{}, store.Noop{}, cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer(t).Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeAcquirer struct {
	result *permits.AcquisitionResult
	err    error

	lastJurisdiction *permits.Jurisdiction
	lastAddress      *permits.Address
	lastOptions      pipeline.Options
}

func (f *fakeAcquirer) Acquire(_ context.Context, j *permits.Jurisdiction, addr *permits.Address, opts pipeline.Options) (*permits.AcquisitionResult, error) {
	f.lastJurisdiction = j
	f.lastAddress = addr
	f.lastOptions = opts
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &permits.AcquisitionResult{ID: "acq-default"}, nil
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t, &fakeAcquirer{}, store.Noop{}, config.Config{})
}

func newTestServerWith(t *testing.T, acq Acquirer, auditStore store.AcquisitionStore, cfg config.Config) *Server {
	t.Helper()
	telemetry.Init()
	return NewServer(acq, auditStore, cfg, zap.NewNop())
}
