package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/rohankatakam/graphinventory/internal/availability"
)

// HealthResponse is the body of /healthz and the clear endpoint
type HealthResponse struct {
	Status    string     `json:"status"`
	Mode      string     `json:"mode"`
	LastProbe *time.Time `json:"last_probe,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// healthz reports the cached verdict, or probes the store when mode=actual.
// Only a known-unavailable store answers 503.
func (s *Server) healthz(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	mode, err := availability.ParseCheckerType(r.URL.Query().Get("mode"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	if mode == availability.Actual && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "actual availability probes are rate limited"})
		return
	}

	status, at := s.checker.Check(r.Context(), mode)
	resp := healthResponse(mode, status, at)

	code := http.StatusOK
	if status == availability.StatusUnavailable {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, resp)
}

func (s *Server) clearAvailability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.checker.ClearCachedIndicator()
	s.logger.Info("availability cache cleared over http", "remote_addr", r.RemoteAddr)
	status, at := s.checker.Snapshot()
	s.writeJSON(w, http.StatusOK, healthResponse(availability.Cached, status, at))
}

func healthResponse(mode availability.CheckerType, status availability.Status, at time.Time) HealthResponse {
	resp := HealthResponse{Status: status.String(), Mode: mode.String()}
	if !at.IsZero() {
		resp.LastProbe = &at
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "status", code, "error", err)
	}
}
