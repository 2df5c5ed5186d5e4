package web

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/bulkio/internal/core"
	"github.com/JonMunkholm/bulkio/internal/format"
)

// multipartMemory caps how much of an upload is buffered in memory while
// the form is parsed; the rest spills to temp files.
const multipartMemory = 32 << 20

// multipartOverhead leaves room for the form boundaries and the strategy
// field on top of the file itself.
const multipartOverhead = 1 << 20

// handleImportAsync accepts a multipart upload and starts an import job.
func (s *Server) handleImportAsync(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	if _, err := s.service.Entity(entity); err != nil {
		s.respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			err = fmt.Errorf("%w: limit is %d MB", core.ErrFileTooLarge, s.maxUploadSize()/(1024*1024))
		} else {
			err = fmt.Errorf("%w: no file provided: %v", errBadRequest, err)
		}
		s.respondError(w, r, err)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	strategy, err := core.ParseStrategy(r.FormValue("strategy"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, fmt.Errorf("%w: no file provided", errBadRequest))
		return
	}
	defer file.Close()

	jobID, err := s.service.StartImport(r.Context(), core.ImportRequest{
		Entity:      entity,
		FileName:    header.Filename,
		Strategy:    strategy,
		TriggeredBy: triggeredBy(r),
	}, file)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

// handleImportStatus returns the import job document.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.ImportStatus(chi.URLParam(r, "entity"), chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleErrorReport streams an import's error report as a CSV attachment.
func (s *Server) handleErrorReport(w http.ResponseWriter, r *http.Request) {
	obj, err := s.service.ErrorReport(r.Context(), chi.URLParam(r, "entity"), chi.URLParam(r, "reportID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeAttachment(w, obj.Meta.Name, obj.Meta.ContentType, obj.Data)
}

// handleTemplate renders an import template. format defaults to
// delimited-text and samples to false.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")

	f := format.DelimitedText
	if v := r.URL.Query().Get("format"); v != "" {
		parsed, err := format.ParseFormat(v)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		f = parsed
	}

	samples := false
	if v := r.URL.Query().Get("samples"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, r, fmt.Errorf("%w: invalid parameter samples=%q", errBadRequest, v))
			return
		}
		samples = b
	}

	var buf bytes.Buffer
	if err := s.service.Template(&buf, entity, f, samples); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeAttachment(w, entity+"-template."+f.Extension(), f.ContentType(), buf.Bytes())
}

func (s *Server) maxUploadSize() int64 {
	if s.cfg.Import.MaxFileSize > 0 {
		return s.cfg.Import.MaxFileSize
	}
	return core.DefaultMaxFileSize
}

// writeAttachment sends data as a download named name.
func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
