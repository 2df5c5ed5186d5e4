// Package history is the durable ledger of finished import and export jobs.
//
// Records are written once, when a job reaches a terminal state, and are
// never updated in place. The single exception is AttachArtifact, which
// fills in an error report or download reference that was produced after
// the record was written. The ledger outlives the in-memory job table and
// is the only audit trail once a job has been evicted.
package history

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a job id.
	ErrNotFound = errors.New("history record not found")

	// ErrDuplicate is returned when a job id is recorded twice.
	ErrDuplicate = errors.New("history record already exists")

	// ErrArtifactAttached is returned when the artifact slot is already set.
	ErrArtifactAttached = errors.New("artifact reference already attached")

	// ErrInvalidArtifact is returned for artifact kinds the record cannot
	// hold, such as a download reference on an import.
	ErrInvalidArtifact = errors.New("invalid artifact kind for record")
)

// Kind is the operation a record describes.
type Kind string

const (
	KindImport Kind = "import"
	KindExport Kind = "export"
)

// ArtifactKind names the artifact slot AttachArtifact fills.
type ArtifactKind string

const (
	ArtifactErrorReport ArtifactKind = "error-report"
	ArtifactDownload    ArtifactKind = "download"
)

// Record is the projection of one terminal job.
type Record struct {
	JobID         string            `json:"jobId"`
	Kind          Kind              `json:"type"`
	EntityType    string            `json:"entityType"`
	Status        string            `json:"status"`
	Format        string            `json:"format,omitempty"`
	Strategy      string            `json:"duplicateHandlingStrategy,omitempty"`
	FileName      string            `json:"fileName,omitempty"`
	FileSizeBytes int64             `json:"fileSizeBytes"`
	TotalRows     int               `json:"totalRows"`
	ProcessedRows int               `json:"processedRows"`
	SuccessCount  int               `json:"successCount"`
	UpdatedCount  int               `json:"updatedCount"`
	SkippedCount  int               `json:"skippedCount"`
	ErrorCount    int               `json:"errorCount"`
	ErrorReportID string            `json:"errorReportId,omitempty"`
	DownloadRef   string            `json:"downloadReference,omitempty"`
	Filters       map[string]string `json:"appliedFilters,omitempty"`
	TriggeredBy   string            `json:"triggeredBy,omitempty"`
	Message       string            `json:"message,omitempty"`
	StartedAt     time.Time         `json:"startedAt"`
	CompletedAt   time.Time         `json:"completedAt"`
	ExpiresAt     *time.Time        `json:"expiresAt,omitempty"`
}

// Filter narrows a query. Empty fields match everything.
type Filter struct {
	EntityType string
	Kind       Kind
	Status     string
}

// Page is one page of query results, newest first.
type Page struct {
	Items      []Record `json:"items"`
	TotalCount int64    `json:"totalCount"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
}

// Ledger stores terminal job records.
type Ledger interface {
	// Record appends rec. Recording the same job id twice fails with
	// ErrDuplicate.
	Record(ctx context.Context, rec Record) error

	// AttachArtifact sets the error report or download reference of an
	// existing record, only if that slot is still empty.
	AttachArtifact(ctx context.Context, jobID string, kind ArtifactKind, ref string) error

	// Get returns the record for jobID.
	Get(ctx context.Context, jobID string) (*Record, error)

	// Query returns one page of matching records, newest first.
	Query(ctx context.Context, f Filter, page, pageSize int) (*Page, error)
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// NormalizePage applies the paging defaults and limits.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// ParseArtifactKind accepts the two slot names.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch ArtifactKind(s) {
	case ArtifactErrorReport, ArtifactDownload:
		return ArtifactKind(s), nil
	default:
		return "", ErrInvalidArtifact
	}
}

// slotFor checks that kind fits the record's operation.
func slotFor(recKind Kind, kind ArtifactKind) error {
	switch {
	case kind == ArtifactErrorReport && recKind == KindImport:
		return nil
	case kind == ArtifactDownload && recKind == KindExport:
		return nil
	default:
		return ErrInvalidArtifact
	}
}
