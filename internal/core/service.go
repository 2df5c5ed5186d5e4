package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JonMunkholm/bulkio/internal/config"
	"github.com/JonMunkholm/bulkio/internal/filestore"
	"github.com/JonMunkholm/bulkio/internal/format"
	"github.com/JonMunkholm/bulkio/internal/history"
)

const (
	// DefaultChunkSize is the export page size when none is configured.
	DefaultChunkSize = 500

	// DefaultMaxFileSize is the upload limit when none is configured (100MB).
	DefaultMaxFileSize int64 = 100 * 1024 * 1024
)

// ArtifactStore holds staged uploads, error reports, and export files.
// *filestore.Store satisfies it.
type ArtifactStore interface {
	Put(ctx context.Context, data []byte, meta filestore.Meta, ttl time.Duration) (string, error)
	Get(ctx context.Context, ref string) (*filestore.Object, error)
	Stat(ctx context.Context, ref string) (filestore.Meta, error)
	Delete(ctx context.Context, ref string) error
}

// Options tunes the pipelines and the orchestrator.
type Options struct {
	StagingTTL          time.Duration
	ErrorReportTTL      time.Duration
	MaxHeaderSearchRows int
	MaxFileSize         int64

	ChunkSize   int
	ArtifactTTL time.Duration
	MaxRows     int

	Jobs OrchestratorOptions
}

// OptionsFromConfig maps the service configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		StagingTTL:          cfg.Import.StagingTTL,
		ErrorReportTTL:      cfg.Import.ErrorReportTTL,
		MaxHeaderSearchRows: cfg.Import.MaxHeaderSearchRows,
		MaxFileSize:         cfg.Import.MaxFileSize,
		ChunkSize:           cfg.Export.ChunkSize,
		ArtifactTTL:         cfg.Export.ArtifactTTL,
		MaxRows:             cfg.Export.MaxRows,
		Jobs: OrchestratorOptions{
			MaxConcurrent: cfg.Jobs.MaxConcurrent,
			MaxWaitTime:   cfg.Jobs.MaxWaitTime,
			Retention:     cfg.Jobs.Retention,
			Timeout:       cfg.Jobs.Timeout,
		},
	}
}

// Service is the entry point for imports and exports. It resolves entity
// names, stages uploads, and hands work to the orchestrator.
type Service struct {
	registry *Registry
	jobs     *Orchestrator
	store    ArtifactStore
	ledger   history.Ledger
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a Service. The ledger also receives one record per
// finished job.
func NewService(registry *Registry, store ArtifactStore, ledger history.Ledger, opts Options) *Service {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	opts.Jobs.Ledger = ledger
	now := opts.Jobs.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		registry: registry,
		jobs:     NewOrchestrator(opts.Jobs),
		store:    store,
		ledger:   ledger,
		opts:     opts,
		now:      now,
		logger:   slog.Default().With("component", "service"),
	}
}

// Entities describes every registered entity.
func (s *Service) Entities() []EntityInfo {
	defs := s.registry.All()
	infos := make([]EntityInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info()
	}
	return infos
}

// Entity describes one entity.
func (s *Service) Entity(name string) (EntityInfo, error) {
	def, err := s.definition(name)
	if err != nil {
		return EntityInfo{}, err
	}
	return def.Info(), nil
}

// ImportRequest is an upload to import.
type ImportRequest struct {
	Entity      string
	FileName    string
	Strategy    Strategy
	TriggeredBy string
}

// StartImport stages the upload and starts an import job. It returns the
// job id without waiting for any row to be processed.
func (s *Service) StartImport(ctx context.Context, req ImportRequest, r io.Reader) (string, error) {
	def, err := s.definition(req.Entity)
	if err != nil {
		return "", err
	}
	if !def.canImport() {
		return "", fmt.Errorf("%w: import %s", ErrUnsupported, req.Entity)
	}
	strategy, err := ParseStrategy(string(req.Strategy))
	if err != nil {
		return "", err
	}
	req.Strategy = strategy

	data, err := io.ReadAll(io.LimitReader(r, s.opts.MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.opts.MaxFileSize {
		return "", fmt.Errorf("%w: limit is %d MB", ErrFileTooLarge, s.opts.MaxFileSize/(1024*1024))
	}

	staged, err := s.store.Put(ctx, data, filestore.Meta{
		Kind:        filestore.KindUpload,
		Owner:       req.Entity,
		Name:        req.FileName,
		ContentType: format.FromFileName(req.FileName).ContentType(),
	}, s.opts.StagingTTL)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}

	jobID, err := s.jobs.Submit(ctx, Submission{
		Kind:          KindImport,
		EntityType:    req.Entity,
		Format:        format.FromFileName(req.FileName),
		Strategy:      req.Strategy,
		FileName:      req.FileName,
		FileSizeBytes: int64(len(data)),
		TriggeredBy:   req.TriggeredBy,
	}, s.importWork(def, staged, req.FileName, req.Strategy))
	if err != nil {
		_ = s.store.Delete(context.Background(), staged)
		return "", err
	}
	return jobID, nil
}

// ExportRequest selects the records to export and the output format.
type ExportRequest struct {
	Entity      string
	Format      format.Format
	Filters     map[string]string
	IDs         []string
	TriggeredBy string
}

// StartExport starts an export job and returns its id.
func (s *Service) StartExport(ctx context.Context, req ExportRequest) (string, error) {
	def, err := s.definition(req.Entity)
	if err != nil {
		return "", err
	}
	if !def.canExport() {
		return "", fmt.Errorf("%w: export %s", ErrUnsupported, req.Entity)
	}
	if req.Format == "" {
		req.Format = format.DelimitedText
	}
	f, err := format.ParseFormat(string(req.Format))
	if err != nil {
		return "", err
	}
	req.Format = f

	return s.jobs.Submit(ctx, Submission{
		Kind:        KindExport,
		EntityType:  req.Entity,
		Format:      req.Format,
		Filters:     req.Filters,
		IDs:         req.IDs,
		TriggeredBy: req.TriggeredBy,
	}, s.exportWork(def, req.Format, req.Filters, req.IDs))
}

// ImportStatus returns the import job, scoped to entity.
func (s *Service) ImportStatus(entity, jobID string) (Job, error) {
	return s.scopedStatus(KindImport, entity, jobID)
}

// ExportStatus returns the export job, scoped to entity.
func (s *Service) ExportStatus(entity, jobID string) (Job, error) {
	return s.scopedStatus(KindExport, entity, jobID)
}

func (s *Service) scopedStatus(kind Kind, entity, jobID string) (Job, error) {
	job, err := s.jobs.Status(jobID)
	if err != nil {
		return Job{}, err
	}
	if job.Kind != kind || job.EntityType != entity {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

// Job returns any job by id.
func (s *Service) Job(jobID string) (Job, error) {
	return s.jobs.Status(jobID)
}

// Subscribe streams snapshots of a job until it is terminal.
func (s *Service) Subscribe(jobID string) (<-chan Job, error) {
	return s.jobs.Subscribe(jobID)
}

// Await blocks until the job is terminal.
func (s *Service) Await(ctx context.Context, jobID string) (Job, error) {
	return s.jobs.Await(ctx, jobID)
}

// ErrorReport returns an import's error report. Unknown and expired
// reports are both ErrArtifactNotFound.
func (s *Service) ErrorReport(ctx context.Context, entity, reportID string) (*filestore.Object, error) {
	if _, err := s.definition(entity); err != nil {
		return nil, err
	}
	return s.artifact(ctx, reportID, filestore.KindErrorReport, entity)
}

// Download returns a finished export's artifact. Jobs already evicted from
// the job table are resolved through the history ledger.
func (s *Service) Download(ctx context.Context, entity, jobID string) (*filestore.Object, error) {
	var (
		status    Status
		ref       string
		expiresAt *time.Time
	)

	job, err := s.ExportStatus(entity, jobID)
	switch {
	case err == nil:
		status, ref, expiresAt = job.Status, job.DownloadRef, job.ExpiresAt
	case errors.Is(err, ErrJobNotFound) && s.ledger != nil:
		rec, lerr := s.ledger.Get(ctx, jobID)
		if lerr != nil {
			if errors.Is(lerr, history.ErrNotFound) {
				return nil, ErrJobNotFound
			}
			return nil, lerr
		}
		if rec.Kind != KindExport || rec.EntityType != entity {
			return nil, ErrJobNotFound
		}
		status, ref, expiresAt = Status(rec.Status), rec.DownloadRef, rec.ExpiresAt
	default:
		return nil, err
	}

	if status != StatusCompleted || ref == "" {
		return nil, ErrJobNotReady
	}
	if expiresAt != nil && !s.now().Before(*expiresAt) {
		return nil, ErrArtifactNotFound
	}
	return s.artifact(ctx, ref, filestore.KindExport, entity)
}

// artifact fetches ref and checks that it is a kind artifact of entity.
// A mismatch looks the same as a missing artifact.
func (s *Service) artifact(ctx context.Context, ref string, kind filestore.Kind, entity string) (*filestore.Object, error) {
	obj, err := s.store.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) || errors.Is(err, filestore.ErrExpired) {
			return nil, ErrArtifactNotFound
		}
		return nil, err
	}
	if obj.Meta.Kind != kind || obj.Meta.Owner != entity {
		return nil, ErrArtifactNotFound
	}
	return obj, nil
}

// Template renders an empty import file for entity, optionally with
// sample rows.
func (s *Service) Template(w io.Writer, entity string, f format.Format, withSamples bool) error {
	def, err := s.definition(entity)
	if err != nil {
		return err
	}
	if f == format.Document {
		return fmt.Errorf("%w: templates are not available as %s", format.ErrUnsupportedFormat, f)
	}
	var buf bytes.Buffer
	if err := format.RenderTemplate(&buf, f, def.template(withSamples)); err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

// History returns one page of finished jobs, newest first.
func (s *Service) History(ctx context.Context, f history.Filter, page, pageSize int) (*history.Page, error) {
	if s.ledger == nil {
		page, pageSize = history.NormalizePage(page, pageSize)
		return &history.Page{Items: []history.Record{}, Page: page, PageSize: pageSize}, nil
	}
	return s.ledger.Query(ctx, f, page, pageSize)
}

// Limits reports worker slot usage.
func (s *Service) Limits() LimiterStatus {
	return s.jobs.LimiterStatus()
}

// Wait stops accepting jobs and waits for running ones to finish.
func (s *Service) Wait(ctx context.Context) error {
	return s.jobs.Wait(ctx)
}

func (s *Service) definition(name string) (Definition, error) {
	def, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return def, nil
}
