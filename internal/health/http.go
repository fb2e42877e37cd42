package health

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPHandler serves the health endpoints
type HTTPHandler struct {
	manager *Manager
	logger  *zap.Logger
}

func NewHTTPHandler(manager *Manager, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{manager: manager, logger: logger}
}

// RegisterRoutes registers /health, /health/ready, /health/live and /health/detailed
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /health/ready", h.handleReadiness)
	mux.HandleFunc("GET /health/live", h.handleLiveness)
	mux.HandleFunc("GET /health/detailed", h.handleDetailed)
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.manager.Run(r.Context())
	status := http.StatusOK
	if report.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.write(w, status, map[string]interface{}{
		"status":    report.Status.String(),
		"ready":     report.Ready,
		"timestamp": report.Timestamp.Unix(),
		"duration":  report.Duration.String(),
	})
}

func (h *HTTPHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	report := h.manager.Run(r.Context())
	status, msg := http.StatusOK, "ready"
	if !report.Ready {
		status, msg = http.StatusServiceUnavailable, "not ready"
	}
	h.write(w, status, map[string]interface{}{
		"status":    msg,
		"ready":     report.Ready,
		"timestamp": report.Timestamp.Unix(),
	})
}

// handleLiveness only proves the process serves HTTP; it never runs checks
func (h *HTTPHandler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.write(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().Unix(),
	})
}

func (h *HTTPHandler) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := h.manager.Run(r.Context())
	status := http.StatusOK
	if report.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.write(w, status, report)
}

func (h *HTTPHandler) write(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}
