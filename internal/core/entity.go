package core

import (
	"context"
	"errors"
	"strings"

	"github.com/JonMunkholm/bulkio/internal/format"
)

// RowContext is what a row processor knows about the row it is handling.
type RowContext struct {
	EntityType string
	JobID      string
	Strategy   Strategy
	Row        format.Row
}

// RowProcessor validates and persists one decoded row and reports the
// verdict. Only the processor knows the entity's identity rules, so it
// alone applies the duplicate strategy.
type RowProcessor[T any] func(ctx context.Context, rc RowContext, item T) RowOutcome

// FetchRequest asks a data fetcher for one page of records.
type FetchRequest struct {
	Filters map[string]string
	IDs     []string
	Offset  int
	Limit   int
}

// FetchPage is one page of records plus the total matching count.
type FetchPage[T any] struct {
	Rows  []T
	Total int
}

// DataFetcher returns records matching the request, in a stable order.
type DataFetcher[T any] func(ctx context.Context, req FetchRequest) (FetchPage[T], error)

// ColumnMapper turns one record into named column values.
type ColumnMapper[T any] func(item T) []format.Field

// Column describes one column of an entity's file layout.
type Column struct {
	Name     string   `json:"name"`
	Required bool     `json:"required"`
	Allowed  []string `json:"allowed,omitempty"`
	// Sample is the value shown in template sample rows.
	Sample      string `json:"sample,omitempty"`
	Description string `json:"description,omitempty"`
}

// Entity wires an entity type T into the engine. Process makes it
// importable; Fetch and Map make it exportable.
type Entity[T any] struct {
	Name    string
	Label   string
	Columns []Column
	// KeyFields identify a row in error reports, such as "code".
	KeyFields []string

	// Decode builds T from a parsed row. A returned error fails the row
	// as a validation error. Nil passes the zero T to Process.
	Decode  func(row format.Row) (T, error)
	Process RowProcessor[T]
	Fetch   DataFetcher[T]
	Map     ColumnMapper[T]

	// Samples are template rows, aligned with Columns. When empty a single
	// row of Column.Sample values is used.
	Samples [][]string
}

// EntityInfo is the public description of a registered entity.
type EntityInfo struct {
	Name       string   `json:"name"`
	Label      string   `json:"label"`
	Columns    []Column `json:"columns"`
	KeyFields  []string `json:"keyFields"`
	Importable bool     `json:"importable"`
	Exportable bool     `json:"exportable"`
}

// Definition is an Entity with its row type erased, so one Registry can
// hold entities of any type.
type Definition interface {
	Info() EntityInfo

	columns() []Column
	keyFields() []string
	canImport() bool
	canExport() bool
	processRow(ctx context.Context, rc RowContext) RowOutcome
	fetchPage(ctx context.Context, req FetchRequest) ([][]string, int, error)
	template(withSamples bool) format.Template
}

// Info implements Definition.
func (e Entity[T]) Info() EntityInfo {
	label := e.Label
	if label == "" {
		label = e.Name
	}
	return EntityInfo{
		Name:       e.Name,
		Label:      label,
		Columns:    e.Columns,
		KeyFields:  e.KeyFields,
		Importable: e.canImport(),
		Exportable: e.canExport(),
	}
}

func (e Entity[T]) columns() []Column   { return e.Columns }
func (e Entity[T]) keyFields() []string { return e.KeyFields }
func (e Entity[T]) canImport() bool     { return e.Process != nil }
func (e Entity[T]) canExport() bool     { return e.Fetch != nil && e.Map != nil }

func (e Entity[T]) processRow(ctx context.Context, rc RowContext) RowOutcome {
	if err := checkColumns(e.Columns, rc.Row); err != nil {
		return Failed(err)
	}

	var item T
	if e.Decode != nil {
		decoded, err := e.Decode(rc.Row)
		if err != nil {
			var re *RowError
			if !errors.As(err, &re) {
				err = ValidationError("", "%s", err.Error())
			}
			return Failed(err)
		}
		item = decoded
	}
	return e.Process(ctx, rc, item)
}

func (e Entity[T]) fetchPage(ctx context.Context, req FetchRequest) ([][]string, int, error) {
	page, err := e.Fetch(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	names := columnNames(e.Columns)
	rows := make([][]string, len(page.Rows))
	for i, item := range page.Rows {
		rows[i] = format.Align(names, e.Map(item))
	}
	return rows, page.Total, nil
}

func (e Entity[T]) template(withSamples bool) format.Template {
	t := format.Template{Columns: make([]format.TemplateColumn, len(e.Columns))}
	for i, c := range e.Columns {
		t.Columns[i] = format.TemplateColumn{Name: c.Name, Required: c.Required, Allowed: c.Allowed}
	}
	if !withSamples {
		return t
	}
	if len(e.Samples) > 0 {
		t.Samples = e.Samples
		return t
	}
	sample := make([]string, len(e.Columns))
	hasSample := false
	for i, c := range e.Columns {
		sample[i] = c.Sample
		hasSample = hasSample || c.Sample != ""
	}
	if hasSample {
		t.Samples = [][]string{sample}
	}
	return t
}

// checkColumns applies the generic column rules: required values must be
// present and constrained columns must hold an allowed value.
func checkColumns(cols []Column, row format.Row) error {
	for _, c := range cols {
		v := row.Get(c.Name)
		if v == "" {
			if c.Required {
				return ValidationError(c.Name, "required value is missing")
			}
			continue
		}
		if len(c.Allowed) > 0 && !containsFold(c.Allowed, v) {
			return ValidationError(c.Name, "invalid value %q (allowed: %s)", v, strings.Join(c.Allowed, ", "))
		}
	}
	return nil
}

func columnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func requiredColumns(cols []Column) []string {
	var names []string
	for _, c := range cols {
		if c.Required {
			names = append(names, c.Name)
		}
	}
	return names
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
