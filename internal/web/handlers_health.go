package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/bulkio/internal/core"
)

// readyTimeout bounds the dependency check behind /readyz.
const readyTimeout = 2 * time.Second

type healthResponse struct {
	Status string             `json:"status"`
	Jobs   core.LimiterStatus `json:"jobs"`
}

// handleHealth reports liveness and worker slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Jobs: s.service.Limits()})
}

// handleReady reports whether the database is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready.CheckReady(ctx); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
