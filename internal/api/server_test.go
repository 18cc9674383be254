package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskbot/internal/domain"
	"taskbot/internal/scheduler"
	"taskbot/internal/store"
	"taskbot/internal/testutil"
)

type fixedStats scheduler.Stats

func (f fixedStats) Stats() scheduler.Stats { return scheduler.Stats(f) }

func newTestServer(t *testing.T) (http.Handler, store.Repository) {
	t.Helper()
	repo := store.NewSQLiteRepo(testutil.OpenTestDB(t))
	return NewServer(repo, fixedStats{Cycles: 3, Deliveries: 2, Failures: 1}), repo
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetrics(t *testing.T) {
	h, repo := newTestServer(t)
	require.NoError(t, repo.CreateTask(context.Background(), domain.Task{
		ChatID: 1, Name: "btc", Question: "price?", Interval: 5, LastRun: time.Now(),
	}))
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "taskbot_up 1\n")
	assert.Contains(t, body, "taskbot_tasks 1\n")
	assert.Contains(t, body, "taskbot_scheduler_cycles_total 3\n")
	assert.Contains(t, body, "taskbot_deliveries_total 2\n")
	assert.Contains(t, body, "taskbot_delivery_failures_total 1\n")
}

func TestListTasks(t *testing.T) {
	h, repo := newTestServer(t)
	ctx := context.Background()
	for _, tk := range []domain.Task{
		{ChatID: 1, Name: "a", Question: "q1", Interval: 5, LastRun: time.Now()},
		{ChatID: 2, Name: "b", Question: "q2", Interval: 10, LastRun: time.Now()},
	} {
		require.NoError(t, repo.CreateTask(ctx, tk))
	}

	rec := do(t, h, http.MethodGet, "/api/tasks", "")
	require.Equal(t, 200, rec.Code)
	var all []taskResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = do(t, h, http.MethodGet, "/api/tasks?chat_id=2", "")
	require.Equal(t, 200, rec.Code)
	var one []taskResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	require.Len(t, one, 1)
	assert.Equal(t, "b", one[0].Name)
	assert.Equal(t, int64(10), one[0].Interval)

	rec = do(t, h, http.MethodGet, "/api/tasks?chat_id=x", "")
	assert.Equal(t, 400, rec.Code)
}

func TestRender(t *testing.T) {
	h, _ := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/render", `{"task":"btc","question":"price?","answer":"It is $50,000."}`)
	require.Equal(t, 200, rec.Code)
	var resp renderResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Markup, `📌 *Task\:* btc`)
	assert.Contains(t, resp.Markup, "It is \\$50\\,000\\.")

	rec = do(t, h, http.MethodPost, "/api/render", `{`)
	assert.Equal(t, 400, rec.Code)
}
