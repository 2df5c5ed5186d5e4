package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Callers quote the code to support staff; the technical error
// is in the logs next to the request id.
//
// Error codes are grouped by category:
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large            Patterns: "file too large"
//	FILE002 - Invalid delimited text    Patterns: "invalid csv"
//	FILE003 - Missing columns           Patterns: "missing required columns"
//	FILE004 - Empty file                Patterns: "empty file"
//	FILE005 - Invalid spreadsheet       Patterns: "invalid spreadsheet"
//	FILE006 - Invalid structured text   Patterns: "invalid structured text", "expected a list of objects", "expected an object", "nested value"
//	FILE007 - No file                   Patterns: "no file provided"
//	FILE008 - Not importable            Patterns: "document files cannot be imported"
//	FILE009 - Unsupported format        Patterns: "unsupported format"
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Invalid strategy           Patterns: "invalid duplicate handling strategy"
//	IMP002 - Upload unreadable          Patterns: "read upload"
//	IMP003 - Report not stored          Patterns: "store error report"
//
// # Export Errors (EXP001-EXP099)
//
//	EXP001 - Export too large           Patterns: "export limit"
//	EXP002 - Source unavailable         Patterns: "pipeline fault: fetch"
//	EXP003 - Render failed              Patterns: "pipeline fault: render"
//	EXP004 - Artifact not stored        Patterns: "store artifact"
//
// # Job Errors (JOB001-JOB099)
//
//	JOB001 - Unknown entity             Patterns: "unknown entity type"
//	JOB002 - Job not found              Patterns: "job not found"
//	JOB003 - Job not finished           Patterns: "job not completed"
//	JOB004 - System busy                Patterns: "too many jobs"
//	JOB005 - Shutting down              Patterns: "shutting down"
//	JOB006 - Not supported              Patterns: "operation not supported"
//	JOB007 - Timed out                  Patterns: "context deadline exceeded", "timeout"
//	JOB008 - Cancelled                  Patterns: "context canceled"
//
// # Artifact Errors (ART001-ART099)
//
//	ART001 - Artifact gone              Patterns: "artifact not found", "artifact expired"
//	ART002 - Artifact corrupt           Patterns: "checksum mismatch"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key               Patterns: "duplicate key"
//	DB002 - Connection refused          Patterns: "connection refused"
//	DB003 - Connection reset            Patterns: "connection reset"
//	DB004 - Deadlock                    Patterns: "deadlock"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Body too large             Patterns: "request body too large"
//	REQ002 - Bad body                   Patterns: "invalid request body"
//	REQ003 - Bad parameter              Patterns: "invalid parameter"
//	REQ004 - Unknown filter             Patterns: "unknown filter column"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited              Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check application logs for
// the original technical error.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are listed
// before general ones.

import "strings"

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"error"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code,omitempty"`
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Order matters: specific before general.
var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller files",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not valid delimited text",
			Action:  "Ensure the file is comma-separated with consistent quoting",
			Code:    "FILE002",
		},
	},
	{
		pattern: "missing required columns",
		msg: UserMessage{
			Message: "Required columns are missing from the file",
			Action:  "Download the template and match its column headers",
			Code:    "FILE003",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header row",
			Code:    "FILE004",
		},
	},
	{
		pattern: "invalid spreadsheet",
		msg: UserMessage{
			Message: "File is not a valid spreadsheet",
			Action:  "Save the file as .xlsx and try again",
			Code:    "FILE005",
		},
	},
	{
		pattern: "invalid structured text",
		msg: UserMessage{
			Message: "File is not a valid list of records",
			Action:  "Upload a JSON or YAML list of flat objects",
			Code:    "FILE006",
		},
	},
	{
		pattern: "expected a list of objects",
		msg: UserMessage{
			Message: "File is not a valid list of records",
			Action:  "Upload a JSON or YAML list of flat objects",
			Code:    "FILE006",
		},
	},
	{
		pattern: "expected an object",
		msg: UserMessage{
			Message: "File is not a valid list of records",
			Action:  "Upload a JSON or YAML list of flat objects",
			Code:    "FILE006",
		},
	},
	{
		pattern: "nested value",
		msg: UserMessage{
			Message: "File is not a valid list of records",
			Action:  "Upload a JSON or YAML list of flat objects",
			Code:    "FILE006",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was uploaded",
			Action:  "Attach a file in the \"file\" form field",
			Code:    "FILE007",
		},
	},
	{
		pattern: "document files cannot be imported",
		msg: UserMessage{
			Message: "This file type cannot be imported",
			Action:  "Upload a .csv, .xlsx, .json or .yaml file",
			Code:    "FILE008",
		},
	},
	{
		pattern: "unsupported format",
		msg: UserMessage{
			Message: "Unsupported file format",
			Action:  "Use spreadsheet, delimited-text, document or structured-text",
			Code:    "FILE009",
		},
	},

	// =========================================================================
	// Import Errors
	// =========================================================================
	{
		pattern: "invalid duplicate handling strategy",
		msg: UserMessage{
			Message: "Unknown duplicate handling strategy",
			Action:  "Use skip, update or create-new",
			Code:    "IMP001",
		},
	},
	{
		pattern: "read upload",
		msg: UserMessage{
			Message: "The uploaded file could not be read",
			Action:  "Please upload the file again",
			Code:    "IMP002",
		},
	},
	{
		pattern: "store error report",
		msg: UserMessage{
			Message: "The error report could not be saved",
			Action:  "Please try the import again",
			Code:    "IMP003",
		},
	},

	// =========================================================================
	// Export Errors
	// =========================================================================
	{
		pattern: "export limit",
		msg: UserMessage{
			Message: "Too many records to export at once",
			Action:  "Narrow the filters and export in parts",
			Code:    "EXP001",
		},
	},
	{
		pattern: "pipeline fault: fetch",
		msg: UserMessage{
			Message: "Records could not be loaded for export",
			Action:  "Please try again",
			Code:    "EXP002",
		},
	},
	{
		pattern: "pipeline fault: render",
		msg: UserMessage{
			Message: "The export file could not be built",
			Action:  "Try a different format or try again",
			Code:    "EXP003",
		},
	},
	{
		pattern: "store artifact",
		msg: UserMessage{
			Message: "The export file could not be saved",
			Action:  "Please try again",
			Code:    "EXP004",
		},
	},

	// =========================================================================
	// Job Errors
	// =========================================================================
	{
		pattern: "unknown entity type",
		msg: UserMessage{
			Message: "Unknown entity type",
			Action:  "List available entities at /api/entities",
			Code:    "JOB001",
		},
	},
	{
		pattern: "job not found",
		msg: UserMessage{
			Message: "Job not found",
			Action:  "The job may have expired. Check the history instead",
			Code:    "JOB002",
		},
	},
	{
		pattern: "job not completed",
		msg: UserMessage{
			Message: "The job has not completed",
			Action:  "Wait for the job to complete before downloading",
			Code:    "JOB003",
		},
	},
	{
		pattern: "too many jobs",
		msg: UserMessage{
			Message: "System busy: too many jobs in progress",
			Action:  "Please wait a moment and try again",
			Code:    "JOB004",
		},
	},
	{
		pattern: "shutting down",
		msg: UserMessage{
			Message: "The service is restarting",
			Action:  "Please try again shortly",
			Code:    "JOB005",
		},
	},
	{
		pattern: "operation not supported",
		msg: UserMessage{
			Message: "This operation is not available for the entity",
			Action:  "Check the entity's importable and exportable flags",
			Code:    "JOB006",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The job timed out",
			Action:  "Try a smaller file or narrower filters",
			Code:    "JOB007",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The job timed out",
			Action:  "Try a smaller file or narrower filters",
			Code:    "JOB007",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "JOB008",
		},
	},

	// =========================================================================
	// Artifact Errors
	// =========================================================================
	{
		pattern: "artifact not found",
		msg: UserMessage{
			Message: "The file is no longer available",
			Action:  "Run the job again to produce a new file",
			Code:    "ART001",
		},
	},
	{
		pattern: "artifact expired",
		msg: UserMessage{
			Message: "The file is no longer available",
			Action:  "Run the job again to produce a new file",
			Code:    "ART001",
		},
	},
	{
		pattern: "checksum mismatch",
		msg: UserMessage{
			Message: "The stored file is damaged",
			Action:  "Run the job again to produce a new file",
			Code:    "ART002",
		},
	},

	// =========================================================================
	// Database Errors
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Import again with the update or skip strategy",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},

	// =========================================================================
	// Requests
	// =========================================================================
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "The upload exceeds the maximum allowed size",
			Action:  "Split the file into smaller parts and import them separately",
			Code:    "REQ001",
		},
	},
	{
		pattern: "invalid request body",
		msg: UserMessage{
			Message: "The request body could not be read",
			Action:  "Send a JSON object with format, filters, and ids",
			Code:    "REQ002",
		},
	},
	{
		pattern: "invalid parameter",
		msg: UserMessage{
			Message: "A query parameter has an invalid value",
			Action:  "Check the parameter values and try again",
			Code:    "REQ003",
		},
	},
	{
		pattern: "unknown filter column",
		msg: UserMessage{
			Message: "A filter names a column this entity does not have",
			Action:  "Filter only on columns listed in the entity template",
			Code:    "REQ004",
		},
	},

	// =========================================================================
	// Rate Limiting
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	return MapMessage(err.Error())
}

// MapMessage maps an error string, such as a failed job's message.
func MapMessage(s string) UserMessage {
	if s == "" {
		return UserMessage{}
	}
	lower := strings.ToLower(s)
	for _, ep := range errorPatterns {
		if strings.Contains(lower, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// IsUserFacing reports whether err matches a known pattern rather than the
// ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
