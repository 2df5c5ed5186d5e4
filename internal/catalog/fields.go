package catalog

// fields.go holds the typed column rules of the catalog entities.
//
// Validation happens at two levels:
//  1. Generic column rules (required, allowed values) run in the import
//     pipeline before a row reaches the entity.
//  2. Typed rules (dates, numbers, booleans, patterns) run here while the
//     row is decoded, and also produce the canonical stored value.

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JonMunkholm/bulkio/internal/core"
)

// FieldType represents the expected data type for a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	default:
		return "value"
	}
}

// FieldSpec defines validation rules for a single column.
type FieldSpec struct {
	Name        string
	Type        FieldType
	Required    bool
	EnumValues  []string            // valid values for FieldEnum
	Pattern     *regexp.Regexp      // optional, checked after normalisation
	Normalizer  func(string) string // optional, applied before type checks
	Sample      string
	Description string
}

// column projects the spec onto the generic pipeline column.
func (f FieldSpec) column() core.Column {
	desc := f.Description
	if desc == "" && f.Type != FieldText && f.Type != FieldEnum {
		desc = f.Type.String()
	}
	return core.Column{
		Name:        f.Name,
		Required:    f.Required,
		Allowed:     f.EnumValues,
		Sample:      f.Sample,
		Description: desc,
	}
}

// Normalize validates raw against the spec and returns the stored form.
// Empty values pass through as "" and are left to the required check.
func (f FieldSpec) Normalize(raw string, now time.Time) (string, error) {
	v := CleanCell(raw)
	if v == "" {
		return "", nil
	}
	if f.Normalizer != nil {
		v = f.Normalizer(v)
	}

	switch f.Type {
	case FieldNumeric:
		n, ok := ParseNumeric(v)
		if !ok {
			return "", core.ValidationError(f.Name, "invalid number format: %q", raw)
		}
		v = n
	case FieldDate:
		d, ok := ParseDate(v, now)
		if !ok {
			return "", core.ValidationError(f.Name, "invalid date format (use YYYY-MM-DD or similar): %q", raw)
		}
		v = d
	case FieldBool:
		b, ok := ParseBool(v)
		if !ok {
			return "", core.ValidationError(f.Name, "must be yes/no, true/false, or 1/0: %q", raw)
		}
		v = fmt.Sprint(b)
	case FieldEnum:
		canon, ok := matchEnum(f.EnumValues, v)
		if !ok {
			return "", core.ValidationError(f.Name, "value must be one of: %s", strings.Join(f.EnumValues, ", "))
		}
		v = canon
	}

	if f.Pattern != nil && !f.Pattern.MatchString(v) {
		return "", core.ValidationError(f.Name, "invalid %s: %q", f.Name, raw)
	}
	return v, nil
}

func matchEnum(values []string, v string) (string, bool) {
	for _, ev := range values {
		if strings.EqualFold(ev, v) {
			return ev, true
		}
	}
	return "", len(values) == 0
}

func upper(s string) string { return strings.ToUpper(s) }
