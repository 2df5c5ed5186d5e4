package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/bulkio/internal/core"
)

// ErrUnknownFilter is returned when a query filters on a column the entity
// does not have.
var ErrUnknownFilter = errors.New("unknown filter column")

// Record is one stored catalog row. Key is the natural key built from the
// entity's key fields; ID is assigned by the store.
type Record struct {
	ID         string
	EntityType string
	Key        string
	Fields     map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaveResult says what Save did with a record.
type SaveResult int

const (
	SaveCreated SaveResult = iota
	SaveUpdated
	SaveSkipped
)

// Query selects records for export. Filters match payload fields
// case-insensitively; IDs match either the record id or the natural key.
type Query struct {
	Filters map[string]string
	IDs     []string
	Offset  int
	Limit   int
}

// RecordStore persists catalog records.
type RecordStore interface {
	// Save stores rec under strategy, atomically with respect to other
	// saves of the same natural key:
	//   - skip: an existing key is left alone (SaveSkipped)
	//   - update: an existing key is overwritten (SaveUpdated)
	//   - create-new: a new record is always inserted (SaveCreated)
	// A missing key is inserted under every strategy.
	Save(ctx context.Context, rec Record, strategy core.Strategy) (SaveResult, error)

	// List returns one page of matching records ordered by natural key,
	// then creation time, and the total number of matches.
	List(ctx context.Context, entityType string, q Query) ([]Record, int, error)
}

func cloneFields(f map[string]string) map[string]string {
	out := make(map[string]string, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
