// Package format converts between tabular byte formats and header-keyed rows.
//
// Parsing turns an uploaded file into a Sheet of rows keyed by header name.
// Rendering streams ordered columns into one of the supported output
// formats through a RowWriter. Both directions are stateless.
package format

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrParse marks a file that could not be turned into rows at all:
// unreadable structure, no header row, or missing required columns.
var ErrParse = errors.New("parse failure")

// ErrUnsupportedFormat is returned for format names the adapter does not know.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Format identifies a tabular byte format.
type Format string

const (
	Spreadsheet    Format = "spreadsheet"
	DelimitedText  Format = "delimited-text"
	Document       Format = "document"
	StructuredText Format = "structured-text"
	// YAML is a structured-text variant emitted as a YAML sequence.
	YAML Format = "yaml"
)

var aliases = map[string]Format{
	"spreadsheet":     Spreadsheet,
	"xlsx":            Spreadsheet,
	"excel":           Spreadsheet,
	"delimited-text":  DelimitedText,
	"csv":             DelimitedText,
	"txt":             DelimitedText,
	"document":        Document,
	"html":            Document,
	"structured-text": StructuredText,
	"json":            StructuredText,
	"yaml":            YAML,
	"yml":             YAML,
}

// ParseFormat resolves a canonical name or common alias ("csv", "xlsx",
// "json", "html", "yaml") to a Format.
func ParseFormat(s string) (Format, error) {
	if f, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FromFileName sniffs the format from a file extension. Unknown or missing
// extensions are treated as delimited text.
func FromFileName(name string) Format {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if f, ok := aliases[ext]; ok {
		return f
	}
	return DelimitedText
}

// ContentType returns the MIME type used when serving the format.
func (f Format) ContentType() string {
	switch f {
	case Spreadsheet:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case Document:
		return "text/html; charset=utf-8"
	case StructuredText:
		return "application/json"
	case YAML:
		return "application/yaml"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Extension returns the file extension, without the dot.
func (f Format) Extension() string {
	switch f {
	case Spreadsheet:
		return "xlsx"
	case Document:
		return "html"
	case StructuredText:
		return "json"
	case YAML:
		return "yaml"
	default:
		return "csv"
	}
}

// Row is one data row keyed by header.
type Row struct {
	// Number is the 1-based position among data rows.
	Number int
	// Line is the 1-based line or sheet row in the source file.
	Line   int
	Values map[string]string
}

// Get returns the value for column, matching the header case-insensitively.
func (r Row) Get(column string) string {
	if v, ok := r.Values[column]; ok {
		return v
	}
	for k, v := range r.Values {
		if strings.EqualFold(k, column) {
			return v
		}
	}
	return ""
}

// Sheet is the result of parsing: the header row and the data rows in
// file order.
type Sheet struct {
	Headers []string
	Rows    []Row
}

// Field is one named value produced by a column mapper.
type Field struct {
	Name  string
	Value string
}

// Table is an ordered set of columns and rows ready for rendering.
type Table struct {
	Columns []string
	Rows    [][]string
}
