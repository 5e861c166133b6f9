package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// getAcquisition handles GET /v1/acquisitions/{acquisition_id}. It returns
// the full stored result on success, 404 when the store reports
// store.ErrNotFound, 503 when no audit store is wired, or 500 for store
// failures.
func (s *Server) getAcquisition(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store unavailable")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "acquisition_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "acquisition_id is required")
		return
	}
	res, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "acquisition not found")
			return
		}
		s.logger.Error("acquisition lookup failed", zap.String("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load acquisition")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listAcquisitions handles GET /v1/acquisitions?jurisdiction=&min_confidence=
// &since=&limit=&offset=. It returns {"acquisitions": [...]} on success, 400
// for invalid filters, 503 when the store is missing, or 500 for store
// failures.
func (s *Server) listAcquisitions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store unavailable")
		return
	}
	filter, err := parseListFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.store.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list acquisitions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list acquisitions")
		return
	}
	if items == nil {
		items = []store.AcquisitionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"acquisitions": items})
}

func parseListFilter(r *http.Request) (store.ListFilter, error) {
	q := r.URL.Query()
	filter := store.ListFilter{
		JurisdictionID: strings.TrimSpace(q.Get("jurisdiction")),
	}
	if v := q.Get("min_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return store.ListFilter{}, errors.New("invalid min_confidence")
		}
		filter.MinConfidence = f
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return store.ListFilter{}, errors.New("invalid since, want RFC 3339")
		}
		filter.Since = ts
	}
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		return store.ListFilter{}, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
