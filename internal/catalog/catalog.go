// Package catalog provides the built-in reference-data entities (currencies,
// tax rates, locations, departments) and the record store behind them.
//
// Each entity is described by a Spec of typed fields. The Catalog turns a
// Spec into a core.Entity whose callbacks decode rows into Records, apply
// the duplicate strategy through the RecordStore, and page records back out
// for export.
package catalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/bulkio/internal/core"
	"github.com/JonMunkholm/bulkio/internal/format"
)

// keySeparator joins multi-field natural keys.
const keySeparator = "|"

// Spec describes one catalog entity.
type Spec struct {
	Name      string
	Label     string
	Fields    []FieldSpec
	KeyFields []string
	// Samples are template rows aligned with Fields.
	Samples [][]string
}

func (s Spec) field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Catalog binds specs to a record store.
type Catalog struct {
	store RecordStore
	now   func() time.Time
}

// New creates a Catalog on store.
func New(store RecordStore) *Catalog {
	return &Catalog{store: store, now: time.Now}
}

// Register adds specs to reg, or every built-in spec when none are given.
func (c *Catalog) Register(reg *core.Registry, specs ...Spec) error {
	if len(specs) == 0 {
		specs = Specs
	}
	for _, s := range specs {
		if err := reg.Register(c.Entity(s)); err != nil {
			return fmt.Errorf("register %s: %w", s.Name, err)
		}
	}
	return nil
}

// Entity builds the engine definition for spec.
func (c *Catalog) Entity(spec Spec) core.Entity[Record] {
	cols := make([]core.Column, len(spec.Fields))
	for i, f := range spec.Fields {
		cols[i] = f.column()
	}

	return core.Entity[Record]{
		Name:      spec.Name,
		Label:     spec.Label,
		Columns:   cols,
		KeyFields: spec.KeyFields,
		Decode: func(row format.Row) (Record, error) {
			return c.decode(spec, row)
		},
		Process: func(ctx context.Context, rc core.RowContext, rec Record) core.RowOutcome {
			return c.process(ctx, rc, rec)
		},
		Fetch: func(ctx context.Context, req core.FetchRequest) (core.FetchPage[Record], error) {
			return c.fetch(ctx, spec, req)
		},
		Map: func(rec Record) []format.Field {
			out := make([]format.Field, len(spec.Fields))
			for i, f := range spec.Fields {
				out[i] = format.Field{Name: f.Name, Value: rec.Fields[f.Name]}
			}
			return out
		},
		Samples: spec.Samples,
	}
}

func (c *Catalog) decode(spec Spec, row format.Row) (Record, error) {
	now := c.now()
	fields := make(map[string]string, len(spec.Fields))
	for _, f := range spec.Fields {
		v, err := f.Normalize(row.Get(f.Name), now)
		if err != nil {
			return Record{}, err
		}
		if v != "" {
			fields[f.Name] = v
		}
	}

	key := make([]string, len(spec.KeyFields))
	for i, name := range spec.KeyFields {
		if fields[name] == "" {
			return Record{}, core.ValidationError(name, "key field is empty")
		}
		key[i] = fields[name]
	}
	return Record{EntityType: spec.Name, Key: strings.Join(key, keySeparator), Fields: fields}, nil
}

func (c *Catalog) process(ctx context.Context, rc core.RowContext, rec Record) core.RowOutcome {
	res, err := c.store.Save(ctx, rec, rc.Strategy)
	if err != nil {
		return core.Failed(fmt.Errorf("save %s %q: %w", rc.EntityType, rec.Key, err))
	}
	switch res {
	case SaveUpdated:
		return core.Updated()
	case SaveSkipped:
		return core.Skipped()
	default:
		return core.Created()
	}
}

func (c *Catalog) fetch(ctx context.Context, spec Spec, req core.FetchRequest) (core.FetchPage[Record], error) {
	// Filter values go through the same normalisation as imported values,
	// so "yes" finds records stored as "true".
	filters := make(map[string]string, len(req.Filters))
	for col, v := range req.Filters {
		f, ok := spec.field(col)
		if !ok {
			return core.FetchPage[Record]{}, fmt.Errorf("%w: %q", ErrUnknownFilter, col)
		}
		norm, err := f.Normalize(v, c.now())
		if err != nil {
			return core.FetchPage[Record]{}, fmt.Errorf("filter %s: %w", col, err)
		}
		filters[col] = norm
	}
	rows, total, err := c.store.List(ctx, spec.Name, Query{
		Filters: filters,
		IDs:     slices.Clone(req.IDs),
		Offset:  req.Offset,
		Limit:   req.Limit,
	})
	if err != nil {
		return core.FetchPage[Record]{}, err
	}
	return core.FetchPage[Record]{Rows: rows, Total: total}, nil
}
