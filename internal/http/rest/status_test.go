package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seliux/vaultgrab/internal/catalog"
	"github.com/seliux/vaultgrab/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededEngine(t *testing.T) *queue.Engine {
	t.Helper()

	e := queue.NewEngine(nil, nil, nil, nil, queue.Config{DownloadDir: t.TempDir()})

	e.EnqueueBatch([]catalog.ItemRecord{{
		Title:     "Chrono Cross",
		DetailURL: "https://example.com/vault/1",
		Category:  "PS1",
		Parts: []catalog.PartInfo{
			{Label: "Disc 1", MediaID: "100", DownloadURL: "https://dl.example.com/?mediaId=100", Size: 100},
			{Label: "Disc 2", MediaID: "200", DownloadURL: "https://dl.example.com/?mediaId=200", Size: 200},
		},
		ScrapedAt: time.Now().UTC(),
	}})

	return e
}

func TestHandleQueue(t *testing.T) {
	h := NewStatusHandler(seededEngine(t), nil, nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var snap queue.Snapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))

	assert.Equal(t, 2, snap.TotalTasks)
	assert.Equal(t, 2, snap.Pending)
	assert.Equal(t, int64(300), snap.TotalBytes)
}

func TestHandleTasks(t *testing.T) {
	h := NewStatusHandler(seededEngine(t), nil, nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue/tasks", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var tasks []queue.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tasks))
	require.Len(t, tasks, 2)
	assert.Equal(t, "Disc 1", tasks[0].Part.Label)
	assert.Equal(t, queue.StatusPending, tasks[0].Status)
}

func TestHandleTask(t *testing.T) {
	e := seededEngine(t)
	id := e.Tasks()[0].ID

	h := NewStatusHandler(e, nil, nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue/tasks/"+id, nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var task queue.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))
	assert.Equal(t, id, task.ID)
}

func TestHandleTask_NotFound(t *testing.T) {
	h := NewStatusHandler(seededEngine(t), nil, nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue/tasks/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleVerify_NonCompletedTaskIsConflict(t *testing.T) {
	e := seededEngine(t)
	id := e.Tasks()[0].ID

	h := NewStatusHandler(e, nil, nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queue/tasks/"+id+"/verify", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleProgress_WithoutScraper(t *testing.T) {
	h := NewStatusHandler(seededEngine(t), nil, nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scrape/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var progress map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&progress))
	assert.EqualValues(t, 0, progress["total_items"])
}

func TestHandleCategories(t *testing.T) {
	h := NewStatusHandler(seededEngine(t), nil, nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/categories", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var categories []string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&categories))
	assert.Contains(t, categories, "PS1")
	assert.Contains(t, categories, "GameCube")
	assert.IsIncreasing(t, categories)
}

func TestHealthz(t *testing.T) {
	h := NewStatusHandler(seededEngine(t), nil, nil)

	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
