package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/bulkio/internal/catalog"
	"github.com/JonMunkholm/bulkio/internal/config"
	"github.com/JonMunkholm/bulkio/internal/core"
	"github.com/JonMunkholm/bulkio/internal/filestore"
	"github.com/JonMunkholm/bulkio/internal/format"
	"github.com/JonMunkholm/bulkio/internal/history"
)

type testServer struct {
	srv     *Server
	service *core.Service
	gate    *gate
}

// gate holds the first page of a "gadgets" export until opened.
type gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	open    sync.Once
}

func (g *gate) Open() { g.open.Do(func() { close(g.release) }) }

type fakeReady struct{ err error }

func (f fakeReady) CheckReady(context.Context) error { return f.err }

func newTestServer(t *testing.T, vars map[string]string, ready ReadinessChecker) *testServer {
	t.Helper()

	env := map[string]string{
		"DATABASE_URL": "postgres://localhost/test",
		"STORAGE_DIR":  t.TempDir(),
	}
	for k, v := range vars {
		env[k] = v
	}
	cfg, err := config.LoadFrom(func(key string) string { return env[key] })
	require.NoError(t, err)

	reg := core.NewRegistry()
	require.NoError(t, catalog.New(catalog.NewMemoryStore()).Register(reg))

	g := &gate{started: make(chan struct{}), release: make(chan struct{})}
	require.NoError(t, reg.Register(gadgets(g)))

	files, err := filestore.Open(cfg.Storage.Dir, filestore.Options{})
	require.NoError(t, err)

	service := core.NewService(reg, files, history.NewMemoryLedger(), core.OptionsFromConfig(cfg))
	srv := NewServer(service, cfg, ready)

	t.Cleanup(func() {
		g.Open()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = service.Wait(ctx)
	})
	return &testServer{srv: srv, service: service, gate: g}
}

func gadgets(g *gate) core.Entity[string] {
	return core.Entity[string]{
		Name:    "gadgets",
		Label:   "Gadgets",
		Columns: []core.Column{{Name: "code", Required: true}},
		Decode:  func(row format.Row) (string, error) { return row.Get("code"), nil },
		Process: func(context.Context, core.RowContext, string) core.RowOutcome { return core.Created() },
		Fetch: func(ctx context.Context, req core.FetchRequest) (core.FetchPage[string], error) {
			if req.Offset > 0 {
				return core.FetchPage[string]{Total: 1}, nil
			}
			g.once.Do(func() { close(g.started) })
			select {
			case <-g.release:
			case <-ctx.Done():
				return core.FetchPage[string]{}, ctx.Err()
			}
			return core.FetchPage[string]{Rows: []string{"G-1"}, Total: 1}, nil
		},
		Map: func(code string) []format.Field { return []format.Field{{Name: "code", Value: code}} },
	}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	req.RemoteAddr = "192.0.2.10:4321"
	rec := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (ts *testServer) upload(t *testing.T, path, fileName, body, strategy string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if strategy != "" {
		require.NoError(t, mw.WriteField("strategy", strategy))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(t, req)
}

func (ts *testServer) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(t, req)
}

func (ts *testServer) await(t *testing.T, jobID string) core.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	job, err := ts.service.Await(ctx, jobID)
	require.NoError(t, err)
	return job
}

func jobIDFrom(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["jobId"])
	return resp["jobId"]
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestImportAsync_Flow(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	body := "code,name,active\n" +
		"ENG,Engineering,yes\n" +
		"FIN,Finance,no\n" +
		"OPS,Operations,maybe\n"
	jobID := jobIDFrom(t, ts.upload(t, "/api/departments/import/async", "departments.csv", body, "skip"))
	ts.await(t, jobID)

	rec := ts.get(t, "/api/departments/import/jobs/"+jobID)
	require.Equal(t, http.StatusOK, rec.Code)

	var job core.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, core.StatusCompleted, job.Status)
	assert.Equal(t, 3, job.ProcessedRows)
	assert.Equal(t, 2, job.SuccessCount)
	assert.Equal(t, 1, job.ErrorCount)
	assert.Equal(t, 100, job.ProgressPercent)
	assert.Equal(t, "departments.csv", job.FileName)
	assert.Equal(t, "192.0.2.10", job.TriggeredBy)
	require.NotEmpty(t, job.ErrorReportID)

	rec = ts.get(t, "/api/departments/import/error-report/"+job.ErrorReportID)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "must be yes/no")
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(rec.Body.String()), "\n")+1, "header plus one failure")

	rec = ts.get(t, "/api/currencies/import/jobs/"+jobID)
	assert.Equal(t, http.StatusNotFound, rec.Code, "jobs are scoped to their entity")

	rec = ts.get(t, "/api/departments/import/error-report/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportAsync_Rejections(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		name       string
		path       string
		fileName   string
		strategy   string
		wantStatus int
		wantCode   string
	}{
		{name: "unknown entity", path: "/api/planets/import/async", fileName: "p.csv", wantStatus: http.StatusNotFound, wantCode: "JOB001"},
		{name: "no file", path: "/api/departments/import/async", strategy: "skip", wantStatus: http.StatusBadRequest, wantCode: "FILE007"},
		{name: "bad strategy", path: "/api/departments/import/async", fileName: "d.csv", strategy: "merge", wantStatus: http.StatusBadRequest, wantCode: "IMP001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.upload(t, tt.path, tt.fileName, "code,name\nENG,Engineering\n", tt.strategy)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		rec := ts.postJSON(t, "/api/departments/import/async", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestImportAsync_TooLarge(t *testing.T) {
	ts := newTestServer(t, map[string]string{"IMPORT_MAX_FILE_SIZE": "16"}, nil)

	rec := ts.upload(t, "/api/departments/import/async", "d.csv", "code,name\nENG,Engineering\nFIN,Finance\n", "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "FILE001", decodeError(t, rec).Code)
}

func TestExportAsync_FlowAndDownload(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	seed := "code,name,symbol,decimal_places,active\nEUR,Euro,€,2,true\nJPY,Japanese Yen,¥,0,false\n"
	ts.await(t, jobIDFrom(t, ts.upload(t, "/api/currencies/import/async", "c.csv", seed, "")))

	jobID := jobIDFrom(t, ts.postJSON(t, "/api/currencies/export/async", `{"format":"json","filters":{"active":"yes"}}`))
	ts.await(t, jobID)

	rec := ts.get(t, "/api/currencies/export/jobs/"+jobID)
	require.Equal(t, http.StatusOK, rec.Code)
	var job core.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, core.StatusCompleted, job.Status)
	assert.Equal(t, 1, job.TotalRows)
	assert.Equal(t, format.StructuredText, job.Format)
	assert.Equal(t, map[string]string{"active": "yes"}, job.Filters)
	require.NotEmpty(t, job.DownloadRef)

	rec = ts.get(t, "/api/currencies/export/jobs/"+jobID+"/download")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".json")
	assert.NotEmpty(t, rec.Header().Get("ETag"))
	assert.Contains(t, rec.Body.String(), "EUR")
	assert.NotContains(t, rec.Body.String(), "JPY")
}

func TestExportAsync_Rejections(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{name: "malformed body", path: "/api/currencies/export/async", body: `{"format":`, wantStatus: http.StatusBadRequest, wantCode: "REQ002"},
		{name: "unknown field", path: "/api/currencies/export/async", body: `{"sheet":"x"}`, wantStatus: http.StatusBadRequest, wantCode: "REQ002"},
		{name: "unknown format", path: "/api/currencies/export/async", body: `{"format":"pdf"}`, wantStatus: http.StatusBadRequest, wantCode: "FILE009"},
		{name: "unknown entity", path: "/api/planets/export/async", body: `{}`, wantStatus: http.StatusNotFound, wantCode: "JOB001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.postJSON(t, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}

	t.Run("empty body exports everything as csv", func(t *testing.T) {
		jobID := jobIDFrom(t, ts.postJSON(t, "/api/currencies/export/async", ""))
		job := ts.await(t, jobID)
		assert.Equal(t, core.StatusCompleted, job.Status)
		assert.Equal(t, format.DelimitedText, job.Format)
	})
}

func TestDownload_NotReadyAndMissing(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	jobID := jobIDFrom(t, ts.postJSON(t, "/api/gadgets/export/async", `{}`))
	<-ts.gate.started

	rec := ts.get(t, "/api/gadgets/export/jobs/"+jobID+"/download")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "JOB003", decodeError(t, rec).Code)

	ts.gate.Open()
	ts.await(t, jobID)

	rec = ts.get(t, "/api/gadgets/export/jobs/"+jobID+"/download")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "code\nG-1\n", rec.Body.String())

	rec = ts.get(t, "/api/gadgets/export/jobs/does-not-exist/download")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB002", decodeError(t, rec).Code)
}

func TestTemplate(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.get(t, "/api/currencies/template?samples=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="currencies-template.csv"`)
	assert.Equal(t, "code,name,symbol,decimal_places,active\nEUR,Euro,€,2,true\nJPY,Japanese Yen,¥,0,true\n", rec.Body.String())

	rec = ts.get(t, "/api/currencies/template")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "code,name,symbol,decimal_places,active\n", rec.Body.String())

	rec = ts.get(t, "/api/currencies/template?format=xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, format.Spreadsheet.ContentType(), rec.Header().Get("Content-Type"))

	rec = ts.get(t, "/api/currencies/template?format=document")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.get(t, "/api/currencies/template?samples=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "REQ003", decodeError(t, rec).Code)

	rec = ts.get(t, "/api/planets/template")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistory(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	ts.await(t, jobIDFrom(t, ts.upload(t, "/api/departments/import/async", "d.csv", "code,name\nENG,Engineering\n", "")))
	ts.await(t, jobIDFrom(t, ts.postJSON(t, "/api/departments/export/async", `{}`)))

	var page history.Page
	rec := ts.get(t, "/api/departments/history")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.EqualValues(t, 2, page.TotalCount)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, history.DefaultPageSize, page.PageSize)

	rec = ts.get(t, "/api/departments/history?type=import&status=completed&pageSize=5")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, history.KindImport, page.Items[0].Kind)
	assert.Equal(t, 5, page.PageSize)

	rec = ts.get(t, "/api/currencies/history")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Zero(t, page.TotalCount)

	rec = ts.get(t, "/api/departments/history?type=delete")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.get(t, "/api/departments/history?status=processing")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.get(t, "/api/planets/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListEntities(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	rec := ts.get(t, "/api/entities")
	require.Equal(t, http.StatusOK, rec.Code)

	var infos []core.EntityInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	assert.ElementsMatch(t, []string{"currencies", "departments", "gadgets", "locations", "tax_rates"}, names)
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t, map[string]string{"JOBS_MAX_CONCURRENT": "3"}, fakeReady{})

	rec := ts.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 3, health.Jobs.MaxConcurrent)

	assert.Equal(t, http.StatusOK, ts.get(t, "/readyz").Code)

	down := newTestServer(t, nil, fakeReady{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, down.get(t, "/readyz").Code)
}

func TestAPIKeyAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{"REQUIRE_API_KEY": "true", "API_KEYS": "s3cret,other"}, nil)

	rec := ts.get(t, "/api/entities")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/entities", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, ts.do(t, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/entities", nil)
	req.Header.Set("X-API-Key", "s3cret")
	assert.Equal(t, http.StatusOK, ts.do(t, req).Code)

	assert.Equal(t, http.StatusOK, ts.get(t, "/healthz").Code, "health checks stay open")
}

func TestTriggeredBy(t *testing.T) {
	ts := newTestServer(t, map[string]string{"REQUIRE_API_KEY": "true", "API_KEYS": "s3cret-key"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/currencies/export/async", strings.NewReader(`{}`))
	req.Header.Set("X-API-Key", "s3cret-key")
	job := ts.await(t, jobIDFrom(t, ts.do(t, req)))
	assert.Equal(t, "key:s3cret…", job.TriggeredBy)

	req = httptest.NewRequest(http.MethodPost, "/api/currencies/export/async", strings.NewReader(`{}`))
	req.Header.Set("X-API-Key", "s3cret-key")
	req.Header.Set("X-Triggered-By", "nightly-sync")
	job = ts.await(t, jobIDFrom(t, ts.do(t, req)))
	assert.Equal(t, "nightly-sync", job.TriggeredBy)
}

func TestRateLimit_SubmitBudget(t *testing.T) {
	ts := newTestServer(t, map[string]string{"RATE_LIMIT_SUBMIT": "1"}, nil)

	jobIDFrom(t, ts.postJSON(t, "/api/currencies/export/async", `{}`))

	rec := ts.postJSON(t, "/api/currencies/export/async", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decodeError(t, rec).Code)

	assert.Equal(t, http.StatusOK, ts.get(t, "/api/entities").Code, "reads use the global budget")
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	rec := ts.get(t, "/healthz")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'none'")

	ts = newTestServer(t, map[string]string{"SECURITY_ENABLE_CSP": "false"}, nil)
	assert.Empty(t, ts.get(t, "/healthz").Header().Get("Content-Security-Policy"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, nil)
	ts.get(t, "/api/entities")

	rec := ts.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bulkio_http_requests_total")
	assert.Contains(t, rec.Body.String(), `path="/api/entities"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrUnknownEntity, http.StatusNotFound},
		{core.ErrJobNotFound, http.StatusNotFound},
		{core.ErrArtifactNotFound, http.StatusNotFound},
		{core.ErrJobNotReady, http.StatusConflict},
		{core.ErrInvalidStrategy, http.StatusBadRequest},
		{format.ErrUnsupportedFormat, http.StatusBadRequest},
		{catalog.ErrUnknownFilter, http.StatusBadRequest},
		{core.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{core.ErrTooManyJobs, http.StatusServiceUnavailable},
		{core.ErrShuttingDown, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRateLimiter_WindowResets(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"), "budgets are per IP")

	now = now.Add(time.Minute + time.Second)
	assert.True(t, rl.allow("a"))
}
