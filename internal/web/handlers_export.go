package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/bulkio/internal/core"
	"github.com/JonMunkholm/bulkio/internal/format"
)

// maxExportRequestBody bounds the JSON export request.
const maxExportRequestBody = 1 << 20

// exportRequest is the body of POST /export/async. Every field is optional.
type exportRequest struct {
	Format  string            `json:"format"`
	Filters map[string]string `json:"filters"`
	IDs     []string          `json:"ids"`
}

// handleExportAsync starts an export job.
func (s *Server) handleExportAsync(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")

	var req exportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExportRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, r, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return
	}

	f := format.DelimitedText
	if req.Format != "" {
		parsed, err := format.ParseFormat(req.Format)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		f = parsed
	}

	jobID, err := s.service.StartExport(r.Context(), core.ExportRequest{
		Entity:      entity,
		Format:      f,
		Filters:     req.Filters,
		IDs:         req.IDs,
		TriggeredBy: triggeredBy(r),
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

// handleExportStatus returns the export job document.
func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.ExportStatus(chi.URLParam(r, "entity"), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleDownload serves a completed export's artifact. Jobs still running
// get 409; expired or unknown artifacts get 404.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	obj, err := s.service.Download(r.Context(), chi.URLParam(r, "entity"), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if obj.Meta.Checksum != "" {
		w.Header().Set("ETag", `"`+obj.Meta.Checksum+`"`)
	}
	writeAttachment(w, obj.Meta.Name, obj.Meta.ContentType, obj.Data)
}
