package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/bulkio/internal/format"
	"github.com/JonMunkholm/bulkio/internal/history"
)

// Kind is the operation a job runs.
type Kind = history.Kind

const (
	KindImport = history.KindImport
	KindExport = history.KindExport
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusCancelled is reserved. No transition reaches it.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Strategy tells the row processor what to do with a row whose natural key
// matches an existing record.
type Strategy string

const (
	StrategySkip      Strategy = "skip"
	StrategyUpdate    Strategy = "update"
	StrategyCreateNew Strategy = "create-new"
)

// ParseStrategy accepts the strategy names case-insensitively. An empty
// string means skip.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return StrategySkip, nil
	case "update":
		return StrategyUpdate, nil
	case "create-new", "createnew", "create_new", "create":
		return StrategyCreateNew, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
	}
}

// Job is a snapshot of one import or export. Snapshots are copies; the
// worker's later updates never show through a Job already returned.
type Job struct {
	ID         string        `json:"jobId"`
	Kind       Kind          `json:"type"`
	EntityType string        `json:"entityType"`
	Status     Status        `json:"status"`
	Format     format.Format `json:"format,omitempty"`
	Strategy   Strategy      `json:"duplicateHandlingStrategy,omitempty"`

	TotalRows       int `json:"totalRows"`
	ProcessedRows   int `json:"processedRows"`
	SuccessCount    int `json:"successCount"`
	UpdatedCount    int `json:"updatedCount"`
	SkippedCount    int `json:"skippedCount"`
	ErrorCount      int `json:"errorCount"`
	ProgressPercent int `json:"progressPercent"`

	ErrorReportID string            `json:"errorReportId,omitempty"`
	DownloadRef   string            `json:"downloadReference,omitempty"`
	FileName      string            `json:"fileName,omitempty"`
	FileSizeBytes int64             `json:"fileSizeBytes,omitempty"`
	Filters       map[string]string `json:"appliedFilters,omitempty"`
	IDs           []string          `json:"ids,omitempty"`
	TriggeredBy   string            `json:"triggeredBy,omitempty"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Message     string     `json:"message,omitempty"`
}

func (j *Job) clone() Job {
	out := *j
	if j.Filters != nil {
		out.Filters = make(map[string]string, len(j.Filters))
		for k, v := range j.Filters {
			out.Filters[k] = v
		}
	}
	if j.IDs != nil {
		out.IDs = append([]string(nil), j.IDs...)
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.ExpiresAt != nil {
		t := *j.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

// HistoryRecord projects a terminal job onto a ledger record.
func (j Job) HistoryRecord() history.Record {
	rec := history.Record{
		JobID:         j.ID,
		Kind:          j.Kind,
		EntityType:    j.EntityType,
		Status:        string(j.Status),
		Format:        string(j.Format),
		Strategy:      string(j.Strategy),
		FileName:      j.FileName,
		FileSizeBytes: j.FileSizeBytes,
		TotalRows:     j.TotalRows,
		ProcessedRows: j.ProcessedRows,
		SuccessCount:  j.SuccessCount,
		UpdatedCount:  j.UpdatedCount,
		SkippedCount:  j.SkippedCount,
		ErrorCount:    j.ErrorCount,
		ErrorReportID: j.ErrorReportID,
		DownloadRef:   j.DownloadRef,
		Filters:       j.Filters,
		TriggeredBy:   j.TriggeredBy,
		Message:       j.Message,
		StartedAt:     j.StartedAt,
		ExpiresAt:     j.ExpiresAt,
	}
	if j.CompletedAt != nil {
		rec.CompletedAt = *j.CompletedAt
	}
	return rec
}

// Submission describes a job to start.
type Submission struct {
	Kind          Kind
	EntityType    string
	Format        format.Format
	Strategy      Strategy
	FileName      string
	FileSizeBytes int64
	Filters       map[string]string
	IDs           []string
	TriggeredBy   string
}

// Outcome is what a worker reports when it finishes.
type Outcome struct {
	Status        Status
	Message       string
	ErrorReportID string
	DownloadRef   string
	FileSizeBytes int64
	ExpiresAt     *time.Time
}

// Completed is a successful outcome.
func Completed(message string) Outcome {
	return Outcome{Status: StatusCompleted, Message: message}
}

// FailedOutcome is a failed outcome carrying err's text as the message.
func FailedOutcome(err error) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{Status: StatusFailed, Message: msg}
}

// RowOutcome is the verdict of a row processor for one row.
type RowOutcome struct {
	Success bool
	Update  bool
	Skip    bool
	Err     error
}

// Created reports a new record.
func Created() RowOutcome { return RowOutcome{Success: true} }

// Updated reports an existing record that was overwritten.
func Updated() RowOutcome { return RowOutcome{Success: true, Update: true} }

// Skipped reports a row that matched an existing record and was left alone.
func Skipped() RowOutcome { return RowOutcome{Success: true, Skip: true} }

// Failed reports a rejected row. err is usually a *RowError; anything else
// is recorded as a system failure.
func Failed(err error) RowOutcome { return RowOutcome{Err: err} }
