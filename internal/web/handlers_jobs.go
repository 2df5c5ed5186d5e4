package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/JonMunkholm/bulkio/internal/core"
	"github.com/JonMunkholm/bulkio/internal/history"
)

const (
	// wsWriteWait bounds each WebSocket write.
	wsWriteWait = 10 * time.Second

	// wsPingInterval keeps idle WebSocket connections alive through proxies.
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleListEntities describes every registered entity.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Entities())
}

// handleHistory returns one page of the entity's finished jobs.
//
// Query parameters: type (import|export), status, page, pageSize.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if _, err := s.service.Entity(entity); err != nil {
		s.respondError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := history.Filter{EntityType: entity}

	switch kind := history.Kind(strings.ToLower(q.Get("type"))); kind {
	case "":
	case history.KindImport, history.KindExport:
		filter.Kind = kind
	default:
		s.respondError(w, r, fmt.Errorf("%w: invalid parameter type=%q", errBadRequest, q.Get("type")))
		return
	}

	if status := strings.ToLower(q.Get("status")); status != "" {
		switch core.Status(status) {
		case core.StatusCompleted, core.StatusFailed, core.StatusCancelled:
			filter.Status = status
		default:
			s.respondError(w, r, fmt.Errorf("%w: invalid parameter status=%q", errBadRequest, q.Get("status")))
			return
		}
	}

	page, pageSize := history.NormalizePage(parseIntParam(r, "page", 1), parseIntParam(r, "pageSize", history.DefaultPageSize))

	result, err := s.service.History(r.Context(), filter, page, pageSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleJobEvents streams a job's snapshots as server-sent events.
//
// Each progress event carries the job document and uses progressPercent as
// its event id, so a reconnecting client that sends Last-Event-ID only
// receives newer progress. The stream ends with a complete event holding
// the terminal document.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	updates, err := s.service.Subscribe(jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("sse: streaming not supported", "job_id", jobID, "error", err)
		return
	}

	var last core.Job
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				data, _ := json.Marshal(last)
				fmt.Fprintf(w, "id: %d\nevent: complete\ndata: %s\n\n", last.ProgressPercent, data)
				_ = rc.Flush()
				return
			}
			last = job
			if job.Status.Terminal() {
				continue
			}
			if job.ProgressPercent <= lastEventID {
				continue
			}
			lastEventID = job.ProgressPercent

			data, _ := json.Marshal(job)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", job.ProgressPercent, data)
			if err := rc.Flush(); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

// handleJobSocket pushes a job's snapshots over a WebSocket as JSON
// messages, closing normally after the terminal snapshot.
func (s *Server) handleJobSocket(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	updates, err := s.service.Subscribe(jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Warn("ws: upgrade failed", "job_id", jobID, "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close and pong control messages are handled.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case job, ok := <-updates:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(job); err != nil {
				return
			}

		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}

		case <-gone:
			return

		case <-r.Context().Done():
			return
		}
	}
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
