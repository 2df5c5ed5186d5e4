package core

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned for job ids that are unknown or evicted.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotReady is returned when a download is requested before the
	// export completed.
	ErrJobNotReady = errors.New("job not completed")

	// ErrUnknownEntity is returned for entity types not in the registry.
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrUnsupported is returned when an entity does not support the
	// requested operation.
	ErrUnsupported = errors.New("operation not supported for entity")

	// ErrArtifactNotFound covers unknown and expired artifacts alike.
	ErrArtifactNotFound = errors.New("artifact not found or expired")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidStrategy is returned for unknown duplicate strategies.
	ErrInvalidStrategy = errors.New("invalid duplicate handling strategy")

	// ErrPipelineFault marks a failure spanning the whole job, such as an
	// unreadable upload or a storage error.
	ErrPipelineFault = errors.New("pipeline fault")
)

// ErrorCategory classifies a row-level failure.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryDuplicate  ErrorCategory = "duplicate"
	CategorySystem     ErrorCategory = "system"
)

// RowError describes why one row failed. Row is the 1-based data row number;
// it is filled in by the pipeline when the callback leaves it zero.
type RowError struct {
	Row      int
	Category ErrorCategory
	Column   string
	Message  string
}

func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d: %s: %s: %s", e.Row, e.Category, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Category, e.Message)
}

// ValidationError reports bad data in column.
func ValidationError(column, format string, args ...any) *RowError {
	return &RowError{Category: CategoryValidation, Column: column, Message: fmt.Sprintf(format, args...)}
}

// DuplicateError reports a row that collides with an existing record in a
// way the strategy does not resolve.
func DuplicateError(column, format string, args ...any) *RowError {
	return &RowError{Category: CategoryDuplicate, Column: column, Message: fmt.Sprintf(format, args...)}
}

// SystemError reports an unexpected failure while processing one row.
func SystemError(format string, args ...any) *RowError {
	return &RowError{Category: CategorySystem, Message: fmt.Sprintf(format, args...)}
}

// asRowError classifies err. Errors that are not a *RowError are treated as
// system failures.
func asRowError(err error, row int) *RowError {
	var re *RowError
	if errors.As(err, &re) {
		out := *re
		if out.Row == 0 {
			out.Row = row
		}
		return &out
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &RowError{Row: row, Category: CategorySystem, Message: msg}
}

func pipelineFault(stage string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPipelineFault, stage, err)
}
