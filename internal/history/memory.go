package history

import (
	"context"
	"sort"
	"sync"
)

// MemoryLedger keeps records in process memory. It backs tests and
// database-less runs.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]*Record)}
}

func (l *MemoryLedger) Record(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[rec.JobID]; ok {
		return ErrDuplicate
	}
	stored := cloneRecord(rec)
	l.records[rec.JobID] = &stored
	return nil
}

func (l *MemoryLedger) AttachArtifact(ctx context.Context, jobID string, kind ArtifactKind, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[jobID]
	if !ok {
		return ErrNotFound
	}
	if err := slotFor(rec.Kind, kind); err != nil {
		return err
	}

	slot := &rec.ErrorReportID
	if kind == ArtifactDownload {
		slot = &rec.DownloadRef
	}
	if *slot != "" {
		return ErrArtifactAttached
	}
	*slot = ref
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, jobID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRecord(*rec)
	return &out, nil
}

func (l *MemoryLedger) Query(ctx context.Context, f Filter, page, pageSize int) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, pageSize = NormalizePage(page, pageSize)

	l.mu.RLock()
	matched := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		if matches(rec, f) {
			matched = append(matched, cloneRecord(*rec))
		}
	}
	l.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CompletedAt.Equal(matched[j].CompletedAt) {
			return matched[i].CompletedAt.After(matched[j].CompletedAt)
		}
		return matched[i].JobID > matched[j].JobID
	})

	result := &Page{
		Items:      []Record{},
		TotalCount: int64(len(matched)),
		Page:       page,
		PageSize:   pageSize,
	}
	start := (page - 1) * pageSize
	if start < len(matched) {
		end := start + pageSize
		if end > len(matched) {
			end = len(matched)
		}
		result.Items = matched[start:end]
	}
	return result, nil
}

func matches(rec *Record, f Filter) bool {
	if f.EntityType != "" && rec.EntityType != f.EntityType {
		return false
	}
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	return true
}

func cloneRecord(rec Record) Record {
	if rec.Filters != nil {
		filters := make(map[string]string, len(rec.Filters))
		for k, v := range rec.Filters {
			filters[k] = v
		}
		rec.Filters = filters
	}
	if rec.ExpiresAt != nil {
		t := *rec.ExpiresAt
		rec.ExpiresAt = &t
	}
	return rec
}
