package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/bulkio/internal/core"
)

// MemoryStore is a RecordStore held in memory, for tests and for running
// without a database.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]*Record // entity type -> records
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]*Record), now: time.Now}
}

func (s *MemoryStore) Save(ctx context.Context, rec Record, strategy core.Strategy) (SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if strategy != core.StrategyCreateNew {
		for _, existing := range s.records[rec.EntityType] {
			if existing.Key != rec.Key {
				continue
			}
			if strategy == core.StrategySkip {
				return SaveSkipped, nil
			}
			existing.Fields = cloneFields(rec.Fields)
			existing.UpdatedAt = now
			return SaveUpdated, nil
		}
	}

	stored := &Record{
		ID:         uuid.New().String(),
		EntityType: rec.EntityType,
		Key:        rec.Key,
		Fields:     cloneFields(rec.Fields),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.records[rec.EntityType] = append(s.records[rec.EntityType], stored)
	return SaveCreated, nil
}

func (s *MemoryStore) List(ctx context.Context, entityType string, q Query) ([]Record, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*Record
	for _, rec := range s.records[entityType] {
		if matchesQuery(rec, q) {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Key != matched[j].Key {
			return matched[i].Key < matched[j].Key
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)
	if q.Offset >= total {
		return []Record{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}

	out := make([]Record, 0, end-q.Offset)
	for _, rec := range matched[q.Offset:end] {
		cp := *rec
		cp.Fields = cloneFields(rec.Fields)
		out = append(out, cp)
	}
	return out, total, nil
}

func matchesQuery(rec *Record, q Query) bool {
	for col, want := range q.Filters {
		if !strings.EqualFold(rec.Fields[col], want) {
			return false
		}
	}
	if len(q.IDs) == 0 {
		return true
	}
	for _, id := range q.IDs {
		if id == rec.ID || id == rec.Key {
			return true
		}
	}
	return false
}
