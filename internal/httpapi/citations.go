package httpapi

import (
	"net/http"

	"github.com/hfjohn123/Anthuria-sub001/internal/citation"
	"github.com/hfjohn123/Anthuria-sub001/internal/metrics"
)

type annotateRequest struct {
	citation.Payload
	Style string `json:"style"`
}

type annotateResponse struct {
	Rendered    string                       `json:"rendered"`
	PlainText   string                       `json:"plain_text"`
	Spans       []citation.Span              `json:"spans"`
	References  []citation.NumberedReference `json:"references"`
	Passthrough bool                         `json:"passthrough"`
	Clamped     int                          `json:"clamped"`
}

// handleAnnotate: POST /v1/citations/annotate
func (s *Server) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	var req annotateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	style, err := citation.ParseStyle(req.Style)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res := citation.Annotate(req.Message, req.Citations)

	mode := "annotated"
	if res.Passthrough() {
		mode = "passthrough"
	}
	metrics.CitationAnnotations.WithLabelValues(mode).Inc()
	metrics.CitationMarkers.Observe(float64(len(res.Markers())))
	if res.Clamped > 0 {
		metrics.CitationOffsetsClamped.Add(float64(res.Clamped))
	}

	spans := res.Spans
	if spans == nil {
		spans = []citation.Span{}
	}
	writeJSON(w, http.StatusOK, annotateResponse{
		Rendered:    citation.Render(res, style),
		PlainText:   res.PlainText(),
		Spans:       spans,
		References:  res.References(),
		Passthrough: res.Passthrough(),
		Clamped:     res.Clamped,
	})
}
