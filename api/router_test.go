package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/api/handlers"
	"github.com/yourusername/vgrab-go/internal/app"
	"github.com/yourusername/vgrab-go/internal/domain"
	"github.com/yourusername/vgrab-go/internal/observability"
)

type fakeService struct {
	mu          sync.Mutex
	records     map[string]*domain.JobRecord
	submitted   []app.SubmitRequest
	lastFilters map[string]interface{}
	statsErr    error
	cancelErr   error
}

func newFakeService() *fakeService {
	return &fakeService{records: make(map[string]*domain.JobRecord)}
}

func (f *fakeService) Submit(req app.SubmitRequest) (*domain.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := domain.QualityBest
	if req.Quality != "" {
		parsed, err := domain.ParseQuality(req.Quality)
		if err != nil {
			return nil, err
		}
		q = parsed
	}
	f.submitted = append(f.submitted, req)
	rec := &domain.JobRecord{
		ID:      fmt.Sprintf("job-%d", len(f.submitted)),
		Source:  req.Source,
		Quality: q,
		State:   domain.StatePending,
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeService) SubmitFrom(p domain.SourceProvider, quality, dest string) (*domain.JobRecord, error) {
	loc, err := p.CurrentLocator()
	if err != nil {
		return nil, err
	}
	return f.Submit(app.SubmitRequest{Source: loc, Quality: quality, Destination: dest})
}

func (f *fakeService) Get(id string) (*domain.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	return rec, nil
}

func (f *fakeService) List(filters map[string]interface{}) ([]*domain.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilters = filters
	var out []*domain.JobRecord
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeService) Cancel(id string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	_, err := f.Get(id)
	return err
}

func (f *fakeService) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrJobNotFound, id)
	}
	if !rec.IsTerminal() {
		return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidStateTransition, id, rec.State)
	}
	delete(f.records, id)
	return nil
}

func (f *fakeService) Prune(state domain.JobState) (*app.PruneResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state != "" && !state.IsTerminal() {
		return nil, fmt.Errorf("%w: cannot prune %s jobs", domain.ErrInvalidRequest, state)
	}
	result := &app.PruneResult{}
	for id, rec := range f.records {
		if rec.IsTerminal() && (state == "" || rec.State == state) {
			delete(f.records, id)
			result.Deleted++
		}
	}
	result.Remaining = int64(len(f.records))
	return result, nil
}

func (f *fakeService) Stats() (*domain.JobStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	return &domain.JobStats{Total: int64(len(f.records)), Pending: int64(len(f.records))}, nil
}

func (f *fakeService) ActiveCount() int { return 2 }

func setupTestRouter(t *testing.T) (http.Handler, *fakeService, RouterConfig) {
	t.Helper()
	svc := newFakeService()
	cfg := RouterConfig{
		Service: svc,
		Page:    domain.NewPageSource(""),
		Events:  handlers.NewEventHub(zap.NewNop(), nil),
		Metrics: observability.New(),
		LogsDir: t.TempDir(),
		Logger:  zap.NewNop(),
	}
	return SetupRouter(cfg), svc, cfg
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_AddJob(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", map[string]string{
		"url":     "https://www.youtube.com/watch?v=abc",
		"quality": "480p",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var got domain.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.Quality480p, got.Quality)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", svc.submitted[0].Source)
}

func TestRouter_AddJobValidation(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", map[string]string{"quality": "best"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs", map[string]string{"url": "https://x", "quality": "4k"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_GetJob(t *testing.T) {
	router, svc, _ := setupTestRouter(t)
	created, err := svc.Submit(app.SubmitRequest{Source: "https://example/v"})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ListJobsFilters(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs?state=running&quality=720p&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"state": "running", "quality": "720p", "limit": 5}, svc.lastFilters)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/jobs?state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/jobs?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_CancelJob(t *testing.T) {
	router, svc, _ := setupTestRouter(t)
	created, err := svc.Submit(app.SubmitRequest{Source: "https://example/v"})
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs/"+created.ID+"/cancel", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	svc.cancelErr = fmt.Errorf("%w: job is succeeded", domain.ErrInvalidStateTransition)
	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs/"+created.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	svc.cancelErr = app.ErrServiceClosed
	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs/"+created.ID+"/cancel", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_DeleteAndPruneJobs(t *testing.T) {
	router, svc, _ := setupTestRouter(t)
	running, err := svc.Submit(app.SubmitRequest{Source: "https://example/running"})
	require.NoError(t, err)
	done, err := svc.Submit(app.SubmitRequest{Source: "https://example/done"})
	require.NoError(t, err)
	failed, err := svc.Submit(app.SubmitRequest{Source: "https://example/failed"})
	require.NoError(t, err)
	svc.mu.Lock()
	done.State = domain.StateSucceeded
	failed.State = domain.StateFailed
	svc.mu.Unlock()

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/jobs/"+running.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/jobs/"+done.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/v1/jobs/"+done.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs/prune?state=running", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/jobs/prune?state=failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result app.PruneResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, app.PruneResult{Deleted: 1, Remaining: 1}, result)
}

func TestRouter_StatsAndHealth(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 2, health.ActiveJobs)

	rec = doJSON(t, router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	svc.statsErr = errors.New("database is locked")
	rec = doJSON(t, router, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/jobs/stats", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouter_PageFlow(t *testing.T) {
	router, svc, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/page", nil)
	assert.JSONEq(t, `{"url":"https://www.youtube.com"}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/v1/page/navigate", map[string]string{"url": "youtube.com/watch?v=xyz"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"url":"http://youtube.com/watch?v=xyz"}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/v1/page/download", map[string]string{"quality": "audio-only"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "http://youtube.com/watch?v=xyz", svc.submitted[0].Source)
	assert.Equal(t, "audio-only", svc.submitted[0].Quality)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/page/home", nil)
	assert.JSONEq(t, `{"url":"https://www.youtube.com"}`, rec.Body.String())
}

func TestRouter_Metrics(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	doJSON(t, router, http.MethodGet, "/health", nil)
	rec := doJSON(t, router, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `vgrab_http_requests_total{method="GET",path="/health",status="200"} 1`)
}

func TestRouter_Logs(t *testing.T) {
	router, _, cfg := setupTestRouter(t)

	line := `{"level":"info","ts":"2024-01-01T00:00:00Z","msg":"job_submitted","job_id":"abc"}` + "\n"
	path := filepath.Join(cfg.LogsDir, "job-"+time.Now().Format("20060102")+".log")
	require.NoError(t, os.WriteFile(path, []byte(line), 0644))

	rec := doJSON(t, router, http.MethodGet, "/api/v1/logs/categories", nil)
	assert.JSONEq(t, `{"categories":["job","error","fetch"]}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, "/api/v1/logs/job", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/logs/job/search?q=abc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "job_submitted")

	rec = doJSON(t, router, http.MethodGet, "/api/v1/logs/..%2Fetc/export", nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/logs/queue", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/logs/job?date=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/logs/error/export?date=2001-01-01", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_EventStream(t *testing.T) {
	router, _, cfg := setupTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return cfg.Events.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	cfg.Events.OnProgress(domain.Progress{JobID: "j1", Percent: 50, PercentKnown: true, ETAText: "00:05"})
	cfg.Events.OnCompletion(domain.JobRecord{ID: "j1", State: domain.StateSucceeded, ResultMessage: domain.SuccessMessage})

	var first, second handlers.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, handlers.EventProgress, first.Type)
	assert.Equal(t, "downloading: 50.0% (00:05 left)", first.Message)
	assert.Equal(t, handlers.EventCompletion, second.Type)
	assert.Equal(t, domain.StateSucceeded, second.Job.State)

	conn.Close()
	require.Eventually(t, func() bool { return cfg.Events.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRouter_NotFound(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
