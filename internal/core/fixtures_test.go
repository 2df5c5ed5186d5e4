package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bulkio/internal/filestore"
	"github.com/JonMunkholm/bulkio/internal/format"
	"github.com/JonMunkholm/bulkio/internal/history"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// widget is the row type of the test entity.
type widget struct {
	Code   string
	Name   string
	Status string
}

// widgetStore is an in-memory record store keyed by code. CreateNew keeps
// extra copies under a suffixed key.
type widgetStore struct {
	mu    sync.Mutex
	items map[string]widget
	seq   int
}

func newWidgetStore(items ...widget) *widgetStore {
	s := &widgetStore{items: make(map[string]widget)}
	for _, it := range items {
		s.items[it.Code] = it
	}
	return s
}

func (s *widgetStore) process(ctx context.Context, rc RowContext, w widget) RowOutcome {
	if w.Name == "panic" {
		panic("processor exploded")
	}
	if w.Name == "plain-error" {
		return Failed(fmt.Errorf("storage unavailable"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.items[w.Code]
	switch {
	case !exists:
		s.items[w.Code] = w
		return Created()
	case rc.Strategy == StrategySkip:
		return Skipped()
	case rc.Strategy == StrategyUpdate:
		s.items[w.Code] = w
		return Updated()
	default:
		s.seq++
		s.items[fmt.Sprintf("%s#%d", w.Code, s.seq)] = w
		return Created()
	}
}

func (s *widgetStore) fetch(ctx context.Context, req FetchRequest) (FetchPage[widget], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var matched []widget
	for _, k := range keys {
		it := s.items[k]
		if st := req.Filters["status"]; st != "" && !strings.EqualFold(st, it.Status) {
			continue
		}
		if len(req.IDs) > 0 && !containsFold(req.IDs, it.Code) {
			continue
		}
		matched = append(matched, it)
	}

	page := FetchPage[widget]{Total: len(matched)}
	if req.Offset < len(matched) {
		end := req.Offset + req.Limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Rows = matched[req.Offset:end]
	}
	return page, nil
}

func (s *widgetStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func widgetEntity(store *widgetStore) Entity[widget] {
	return Entity[widget]{
		Name:  "widgets",
		Label: "Widgets",
		Columns: []Column{
			{Name: "code", Required: true, Sample: "W-1"},
			{Name: "name", Required: true, Sample: "Sprocket"},
			{Name: "status", Allowed: []string{"active", "inactive"}, Sample: "active"},
		},
		KeyFields: []string{"code"},
		Decode: func(row format.Row) (widget, error) {
			return widget{
				Code:   row.Get("code"),
				Name:   row.Get("name"),
				Status: strings.ToLower(row.Get("status")),
			}, nil
		},
		Process: store.process,
		Fetch:   store.fetch,
		Map: func(w widget) []format.Field {
			return []format.Field{
				{Name: "code", Value: w.Code},
				{Name: "name", Value: w.Name},
				{Name: "status", Value: w.Status},
			}
		},
	}
}

type testEnv struct {
	svc     *Service
	store   *filestore.Store
	ledger  *history.MemoryLedger
	widgets *widgetStore
	clock   *testClock
}

func newTestEnv(t *testing.T, opts Options, items ...widget) *testEnv {
	t.Helper()

	clock := newTestClock()
	store, err := filestore.Open(t.TempDir(), filestore.Options{Now: clock.Now})
	require.NoError(t, err)

	widgets := newWidgetStore(items...)
	reg := NewRegistry()
	reg.MustRegister(widgetEntity(widgets))

	ledger := history.NewMemoryLedger()
	if opts.Jobs.Now == nil {
		opts.Jobs.Now = clock.Now
	}
	svc := NewService(reg, store, ledger, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Wait(ctx)
	})

	return &testEnv{svc: svc, store: store, ledger: ledger, widgets: widgets, clock: clock}
}

func (e *testEnv) await(t *testing.T, jobID string) Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := e.svc.Await(ctx, jobID)
	require.NoError(t, err)
	return job
}

func (e *testEnv) importCSV(t *testing.T, body string, strategy Strategy) Job {
	t.Helper()
	id, err := e.svc.StartImport(context.Background(), ImportRequest{
		Entity:   "widgets",
		FileName: "widgets.csv",
		Strategy: strategy,
	}, strings.NewReader(body))
	require.NoError(t, err)
	return e.await(t, id)
}

func seedWidgets(n int) []widget {
	items := make([]widget, n)
	for i := range items {
		status := "active"
		if i%2 == 1 {
			status = "inactive"
		}
		items[i] = widget{Code: fmt.Sprintf("W-%05d", i), Name: fmt.Sprintf("Widget %d", i), Status: status}
	}
	return items
}
