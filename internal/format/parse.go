package format

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// DefaultMaxHeaderSearchRows is used when ParseOptions leaves the limit unset.
const DefaultMaxHeaderSearchRows = 20

// ParseOptions controls header detection.
type ParseOptions struct {
	// Required lists headers that must be present. The header row is the
	// first of the leading rows that contains all of them.
	Required []string
	// Known lists canonical column names. Matching headers are rewritten to
	// the canonical spelling so callbacks can use exact keys.
	Known []string
	// MaxHeaderSearchRows bounds how far down the header row may appear.
	MaxHeaderSearchRows int
}

// Parse reads a tabular file into header-keyed rows. The format is sniffed
// from fileName. Any error wraps ErrParse.
func Parse(r io.Reader, fileName string, opts ParseOptions) (*Sheet, error) {
	if opts.MaxHeaderSearchRows <= 0 {
		opts.MaxHeaderSearchRows = DefaultMaxHeaderSearchRows
	}

	var (
		sheet *Sheet
		err   error
	)
	switch FromFileName(fileName) {
	case Spreadsheet:
		sheet, err = parseSpreadsheet(r, opts)
	case StructuredText, YAML:
		sheet, err = parseStructured(r, opts)
	case Document:
		err = errors.New("document files cannot be imported")
	default:
		sheet, err = parseDelimited(r, opts)
	}
	if err != nil {
		if errors.Is(err, ErrParse) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return sheet, nil
}

// record is one raw source row and its 1-based position in the file.
type record struct {
	line  int
	cells []string
}

func parseDelimited(r io.Reader, opts ParseOptions) (*Sheet, error) {
	reader := csv.NewReader(CleanReader(r))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var records []record
	for {
		cells, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record{line: line, cells: cells})
	}

	return buildSheet(records, opts)
}

func parseSpreadsheet(r io.Reader, opts ParseOptions) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("invalid spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrParse)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	records := make([]record, len(rows))
	for i, cells := range rows {
		records[i] = record{line: i + 1, cells: cells}
	}
	return buildSheet(records, opts)
}

// parseStructured reads a JSON or YAML sequence of flat objects. yaml.v3
// accepts JSON input and keeps key order, which becomes the header order.
func parseStructured(r io.Reader, opts ParseOptions) (*Sheet, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty file", ErrParse)
		}
		return nil, fmt.Errorf("invalid structured text: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: expected a list of objects", ErrParse)
	}

	var headers []string
	seen := make(map[string]bool)
	sheet := &Sheet{}

	for _, item := range root.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%w: line %d: expected an object", ErrParse, item.Line)
		}
		values := make(map[string]string, len(item.Content)/2)
		for i := 0; i+1 < len(item.Content); i += 2 {
			key, val := item.Content[i], item.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%w: line %d: nested value for %q", ErrParse, val.Line, key.Value)
			}
			name := canonical(key.Value, opts.Known)
			if !seen[name] {
				seen[name] = true
				headers = append(headers, name)
			}
			if val.ShortTag() != "!!null" {
				values[name] = strings.TrimSpace(val.Value)
			}
		}
		if isBlank(values) {
			continue
		}
		sheet.Rows = append(sheet.Rows, Row{
			Number: len(sheet.Rows) + 1,
			Line:   item.Line,
			Values: values,
		})
	}

	if len(sheet.Rows) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrParse)
	}
	if missing := missingColumns(headers, opts.Required); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrParse, strings.Join(missing, ", "))
	}
	sheet.Headers = headers
	return sheet, nil
}

// buildSheet finds the header row among the leading records and keys the
// remaining non-blank records by it.
func buildSheet(records []record, opts ParseOptions) (*Sheet, error) {
	headerAt := -1
	var firstMissing []string
	scanned := 0

	for i, rec := range records {
		if isEmptyRecord(rec.cells) {
			continue
		}
		if scanned >= opts.MaxHeaderSearchRows {
			break
		}
		scanned++

		missing := missingColumns(trimAll(rec.cells), opts.Required)
		if len(missing) == 0 {
			headerAt = i
			break
		}
		if firstMissing == nil {
			firstMissing = missing
		}
	}

	if scanned == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrParse)
	}
	if headerAt < 0 {
		return nil, fmt.Errorf("%w: missing required columns: %s", ErrParse, strings.Join(firstMissing, ", "))
	}

	headers := make([]string, len(records[headerAt].cells))
	for i, h := range records[headerAt].cells {
		headers[i] = canonical(strings.TrimSpace(h), opts.Known)
	}

	sheet := &Sheet{Headers: headers}
	for _, rec := range records[headerAt+1:] {
		if isEmptyRecord(rec.cells) {
			continue
		}
		values := make(map[string]string, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(rec.cells) {
				values[h] = strings.TrimSpace(rec.cells[i])
			} else {
				values[h] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, Row{
			Number: len(sheet.Rows) + 1,
			Line:   rec.line,
			Values: values,
		})
	}

	return sheet, nil
}

// missingColumns returns the entries of required absent from headers,
// compared case-insensitively.
func missingColumns(headers, required []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[strings.ToLower(h)] = true
	}
	var missing []string
	for _, r := range required {
		if !present[strings.ToLower(r)] {
			missing = append(missing, r)
		}
	}
	return missing
}

func canonical(header string, known []string) string {
	for _, k := range known {
		if strings.EqualFold(k, header) {
			return k
		}
	}
	return header
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func isEmptyRecord(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isBlank(values map[string]string) bool {
	for _, v := range values {
		if v != "" {
			return false
		}
	}
	return true
}
