package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// RowWriter streams rows into a rendered format. The header, if the format
// has one, is written when the writer is created. Close writes any trailer
// and flushes; it does not close the underlying io.Writer.
type RowWriter interface {
	WriteRow(values []string) error
	Close() error
}

// NewWriter returns a RowWriter for f that writes to w. Every row passed to
// WriteRow must be aligned with columns.
func NewWriter(w io.Writer, f Format, columns []string) (RowWriter, error) {
	switch f {
	case DelimitedText:
		return newDelimitedWriter(w, columns)
	case Spreadsheet:
		return newSpreadsheetWriter(w, columns)
	case Document:
		return newDocumentWriter(w, columns)
	case StructuredText:
		return &jsonWriter{w: w, columns: columns}, nil
	case YAML:
		return &yamlWriter{w: w, columns: columns}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// Render writes a whole table in one call.
func Render(w io.Writer, f Format, t Table) error {
	rw, err := NewWriter(w, f, t.Columns)
	if err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := rw.WriteRow(row); err != nil {
			return err
		}
	}
	return rw.Close()
}

// Align orders mapped fields by columns. Columns with no matching field
// render as empty strings; fields naming unknown columns are dropped.
func Align(columns []string, fields []Field) []string {
	byName := make(map[string]string, len(fields))
	for _, f := range fields {
		byName[f.Name] = f.Value
	}
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = byName[c]
	}
	return out
}

// ============================================================================
// Delimited text
// ============================================================================

type delimitedWriter struct {
	cw *csv.Writer
}

func newDelimitedWriter(w io.Writer, columns []string) (*delimitedWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &delimitedWriter{cw: cw}, nil
}

func (d *delimitedWriter) WriteRow(values []string) error {
	return d.cw.Write(values)
}

func (d *delimitedWriter) Close() error {
	d.cw.Flush()
	return d.cw.Error()
}

// ============================================================================
// Spreadsheet
// ============================================================================

const sheetName = "Sheet1"

type spreadsheetWriter struct {
	w    io.Writer
	file *excelize.File
	sw   *excelize.StreamWriter
	next int
}

func newSpreadsheetWriter(w io.Writer, columns []string) (*spreadsheetWriter, error) {
	f := excelize.NewFile()
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open stream writer: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := sw.SetRow("A1", toCells(columns), excelize.RowOpts{StyleID: bold}); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	return &spreadsheetWriter{w: w, file: f, sw: sw, next: 2}, nil
}

func (s *spreadsheetWriter) WriteRow(values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, s.next)
	if err != nil {
		return err
	}
	s.next++
	return s.sw.SetRow(cell, toCells(values))
}

func (s *spreadsheetWriter) Close() error {
	defer s.file.Close()
	if err := s.sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := s.file.Write(s.w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// ============================================================================
// Structured text
// ============================================================================

// jsonWriter emits an array of objects whose keys keep column order, which
// encoding/json maps cannot do.
type jsonWriter struct {
	w       io.Writer
	columns []string
	rows    int
}

func (j *jsonWriter) WriteRow(values []string) error {
	buf := make([]byte, 0, 64)
	if j.rows == 0 {
		buf = append(buf, "[\n  {"...)
	} else {
		buf = append(buf, ",\n  {"...)
	}
	for i, c := range j.columns {
		if i > 0 {
			buf = append(buf, ", "...)
		}
		key, err := json.Marshal(c)
		if err != nil {
			return err
		}
		val, err := json.Marshal(valueAt(values, i))
		if err != nil {
			return err
		}
		buf = append(buf, key...)
		buf = append(buf, ": "...)
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	j.rows++
	_, err := j.w.Write(buf)
	return err
}

func (j *jsonWriter) Close() error {
	trailer := "\n]\n"
	if j.rows == 0 {
		trailer = "[]\n"
	}
	_, err := io.WriteString(j.w, trailer)
	return err
}

// yamlWriter emits one single-item sequence per row; concatenated they form
// a single YAML sequence.
type yamlWriter struct {
	w       io.Writer
	columns []string
	rows    int
}

func (y *yamlWriter) WriteRow(values []string) error {
	item := &yaml.Node{Kind: yaml.MappingNode}
	for i, c := range y.columns {
		item.Content = append(item.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: valueAt(values, i)},
		)
	}
	out, err := yaml.Marshal(&yaml.Node{Kind: yaml.SequenceNode, Content: []*yaml.Node{item}})
	if err != nil {
		return fmt.Errorf("encode yaml row: %w", err)
	}
	y.rows++
	_, err = y.w.Write(out)
	return err
}

func (y *yamlWriter) Close() error {
	if y.rows == 0 {
		_, err := io.WriteString(y.w, "[]\n")
		return err
	}
	return nil
}

func valueAt(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}
