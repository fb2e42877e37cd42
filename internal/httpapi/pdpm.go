package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hfjohn123/Anthuria-sub001/internal/circuitbreaker"
	"github.com/hfjohn123/Anthuria-sub001/internal/db"
	"github.com/hfjohn123/Anthuria-sub001/internal/metrics"
	"github.com/hfjohn123/Anthuria-sub001/internal/pdpm"
)

type aggregateRequest struct {
	Domain  pdpm.Domain  `json:"domain"`
	Variant string       `json:"variant"`
	Entries []pdpm.Entry `json:"entries"`
}

type tableInfo struct {
	Domain      pdpm.Domain `json:"domain"`
	Variant     string      `json:"variant"`
	Kind        pdpm.Kind   `json:"kind"`
	Description string      `json:"description,omitempty"`
	Codes       []pdpm.Code `json:"codes"`
}

type tablesResponse struct {
	Source string      `json:"source"`
	Tables []tableInfo `json:"tables"`
}

type assessmentResponse struct {
	AssessmentID string       `json:"assessment_id"`
	Summary      pdpm.Summary `json:"summary"`
	Entries      []pdpm.Entry `json:"entries"`
}

func (s *Server) table(w http.ResponseWriter, r *http.Request, domain pdpm.Domain, variant string) (*pdpm.CategoryTable, bool) {
	if strings.TrimSpace(string(domain)) == "" {
		writeError(w, r, http.StatusBadRequest, "domain is required")
		return nil, false
	}
	tbl, err := s.tables.Registry().Table(domain, variant)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, pdpm.ErrUnknownTable) {
			status = http.StatusNotFound
		}
		writeError(w, r, status, err.Error())
		return nil, false
	}
	return tbl, true
}

func (s *Server) aggregate(tbl *pdpm.CategoryTable, entries []pdpm.Entry, source string) pdpm.Summary {
	sum := pdpm.Aggregate(pdpm.Entries(entries), tbl)
	metrics.Aggregations.WithLabelValues(string(tbl.Domain), source).Inc()
	if sum.Changed() {
		metrics.CategoryChanges.WithLabelValues(string(tbl.Domain)).Inc()
	}
	return sum
}

// handleAggregate: POST /v1/pdpm/aggregate
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	var req aggregateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	tbl, ok := s.table(w, r, req.Domain, req.Variant)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.aggregate(tbl, req.Entries, "request"))
}

// handleTables: GET /v1/pdpm/tables
func (s *Server) handleTables(w http.ResponseWriter, _ *http.Request) {
	reg := s.tables.Registry()
	resp := tablesResponse{Source: reg.Source()}
	for _, t := range reg.Tables() {
		resp.Tables = append(resp.Tables, tableInfo{
			Domain:      t.Domain,
			Variant:     t.Variant,
			Kind:        t.Kind,
			Description: t.Description,
			Codes:       t.Codes(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAssessment: GET /v1/assessments/{id}/pdpm?domain=&variant=
func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	if s.entries == nil {
		writeError(w, r, http.StatusServiceUnavailable, "assessment storage is not configured")
		return
	}
	id := r.PathValue("id")
	q := r.URL.Query()
	tbl, ok := s.table(w, r, pdpm.Domain(q.Get("domain")), q.Get("variant"))
	if !ok {
		return
	}

	entries, err := s.entries.ListEntries(r.Context(), id, tbl.Domain, tbl.Variant)
	switch {
	case err == nil:
	case errors.Is(err, db.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, circuitbreaker.ErrOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		writeError(w, r, http.StatusServiceUnavailable, "assessment storage unavailable")
		return
	default:
		s.logger.Error("Failed to load assessment entries",
			zap.String("assessment_id", id),
			zap.String("table", tbl.Key()),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "failed to load assessment")
		return
	}

	writeJSON(w, http.StatusOK, assessmentResponse{
		AssessmentID: id,
		Summary:      s.aggregate(tbl, entries, "assessment"),
		Entries:      entries,
	})
}

// handleInvalidate: DELETE /v1/assessments/{id}/cache
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		writeError(w, r, http.StatusServiceUnavailable, "entry cache is not configured")
		return
	}
	n, err := s.cache.Invalidate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Warn("Cache invalidation failed", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "entry cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}
