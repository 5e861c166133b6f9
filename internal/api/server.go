package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/config"
	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/pipeline"
	"github.com/mrmoe28/permitscout/internal/store"
	"github.com/mrmoe28/permitscout/internal/telemetry"
)

// requestTimeout bounds one request end to end. An acquisition fetches
// several pages under per-host politeness delays, so the window is generous.
const requestTimeout = 3 * time.Minute

// Acquirer runs one acquisition end to end. *app.App satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, j *permits.Jurisdiction, addr *permits.Address, opts pipeline.Options) (*permits.AcquisitionResult, error)
}

// Server wires HTTP handlers to the acquisition pipeline and the audit store.
type Server struct {
	router   chi.Router
	acquirer Acquirer
	store    store.AcquisitionStore
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(acquirer Acquirer, auditStore store.AcquisitionStore, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		acquirer: acquirer,
		store:    auditStore,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))
	r.Use(telemetry.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/acquisitions", func(r chi.Router) {
			r.Post("/", s.runAcquisition)
			r.Get("/", s.listAcquisitions)
			r.Get("/{acquisition_id}", s.getAcquisition)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.acquirer == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type acquireRequest struct {
	Jurisdiction jurisdictionRequest `json:"jurisdiction"`
	Address      *permits.Address    `json:"address,omitempty"`
	Options      acquireOptions      `json:"options"`
}

type jurisdictionRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Website   string `json:"website"`
	PermitURL string `json:"permit_url"`
}

type acquireOptions struct {
	MaxDocuments      int  `json:"max_documents"`
	MaxFlows          int  `json:"max_flows"`
	MaxExternalProbes int  `json:"max_external_probes"`
	BypassCache       bool `json:"bypass_cache"`
}

// runAcquisition handles POST /v1/acquisitions. The pipeline returns an
// error only for structurally invalid input; operational failures are
// contained inside the result, so the non-400 path always carries a body.
func (s *Server) runAcquisition(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	j := &permits.Jurisdiction{
		ID:        req.Jurisdiction.ID,
		Name:      req.Jurisdiction.Name,
		Type:      permits.JurisdictionType(req.Jurisdiction.Type),
		Website:   req.Jurisdiction.Website,
		PermitURL: req.Jurisdiction.PermitURL,
	}
	opts := pipeline.Options{
		MaxDocuments:      req.Options.MaxDocuments,
		MaxFlows:          req.Options.MaxFlows,
		MaxExternalProbes: req.Options.MaxExternalProbes,
		BypassCache:       req.Options.BypassCache,
	}
	res, err := s.acquirer.Acquire(r.Context(), j, req.Address, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
