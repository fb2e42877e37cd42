// Package httpapi exposes citation annotation and PDPM aggregation over JSON/HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hfjohn123/Anthuria-sub001/internal/auth"
	"github.com/hfjohn123/Anthuria-sub001/internal/pdpm"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 4 << 20

// EntrySource loads the scored items of a stored assessment
type EntrySource interface {
	ListEntries(ctx context.Context, assessmentID string, domain pdpm.Domain, variant string) ([]pdpm.Entry, error)
}

// Invalidator drops cached entries of an assessment
type Invalidator interface {
	Invalidate(ctx context.Context, assessmentID string) (int, error)
}

// Options wires the server's collaborators. Entries and Cache are optional; without
// them the assessment routes answer 503.
type Options struct {
	Tables    *pdpm.Store
	Entries   EntrySource
	Cache     Invalidator
	Auth      *auth.Middleware
	RateLimit *RateLimiter
	Logger    *zap.Logger
}

// Server holds the handlers
type Server struct {
	tables  *pdpm.Store
	entries EntrySource
	cache   Invalidator
	auth    *auth.Middleware
	limiter *RateLimiter
	logger  *zap.Logger
}

func NewServer(opts Options) *Server {
	if opts.Auth == nil {
		opts.Auth = auth.NewMiddleware(nil, true, opts.Logger)
	}
	return &Server{
		tables:  opts.Tables,
		entries: opts.Entries,
		cache:   opts.Cache,
		auth:    opts.Auth,
		limiter: opts.RateLimit,
		logger:  opts.Logger,
	}
}

// RegisterRoutes adds the API routes to mux
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handle(mux, "POST /v1/citations/annotate", auth.ScopeRead, s.handleAnnotate)
	s.handle(mux, "POST /v1/pdpm/aggregate", auth.ScopeRead, s.handleAggregate)
	s.handle(mux, "GET /v1/pdpm/tables", auth.ScopeRead, s.handleTables)
	s.handle(mux, "GET /v1/assessments/{id}/pdpm", auth.ScopeRead, s.handleAssessment)
	s.handle(mux, "DELETE /v1/assessments/{id}/cache", auth.ScopeWrite, s.handleInvalidate)
}

// handle composes the middleware for one route: instrumentation and request ids run
// first, then rate limiting, then authentication.
func (s *Server) handle(mux *http.ServeMux, pattern, scope string, fn http.HandlerFunc) {
	var h http.Handler = s.auth.Require(scope, fn)
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = instrument(pattern, s.logger, h)
	mux.Handle(pattern, requestID(h))
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: RequestIDFrom(r.Context())})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return err
	}
	return nil
}
