package queue

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seliux/vaultgrab/internal/archive"
	"github.com/seliux/vaultgrab/internal/catalog"
	"github.com/seliux/vaultgrab/internal/fetch"
	"github.com/seliux/vaultgrab/internal/logctx"
	"github.com/seliux/vaultgrab/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProcessEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()

	if cfg.DownloadDir == "" {
		cfg.DownloadDir = t.TempDir()
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 1
	}

	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Millisecond
	}

	client := fetch.NewClient(fetch.Config{Timeout: 10 * time.Second})

	return NewEngine(client, nil, nil, nil, cfg)
}

func drain(t *testing.T, ch <-chan Task) []Task {
	t.Helper()

	var tasks []Task

	timeout := time.After(15 * time.Second)

	for {
		select {
		case task, ok := <-ch:
			if !ok {
				return tasks
			}

			tasks = append(tasks, task)
		case <-timeout:
			t.Fatal("timed out draining the task channel")
		}
	}
}

func itemWithURLs(title string, urls ...string) catalog.ItemRecord {
	parts := make([]catalog.PartInfo, 0, len(urls))
	for i, u := range urls {
		parts = append(parts, catalog.PartInfo{
			Label:       fmt.Sprintf("Disc %d", i+1),
			MediaID:     fmt.Sprintf("%s-%d", title, i+1),
			DownloadURL: u,
		})
	}

	return catalog.ItemRecord{
		Title:     title,
		DetailURL: "https://example.com/vault/1",
		Category:  "PS1",
		Parts:     parts,
	}
}

func TestProcess_EndToEnd(t *testing.T) {
	payloadA := bytes.Repeat([]byte("a"), 100)
	payloadB := bytes.Repeat([]byte("b"), 200)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")

		switch r.URL.Path {
		case "/one":
			w.Write(payloadA)
		case "/two":
			w.Write(payloadB)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := newProcessEngine(t, Config{})
	tasks := e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", srv.URL+"/one", srv.URL+"/two")})
	require.Len(t, tasks, 2)

	done := drain(t, e.Process(context.Background()))
	require.Len(t, done, 2)

	snap := e.Snapshot()
	assert.Equal(t, 2, snap.Completed)
	assert.Equal(t, int64(300), snap.TotalBytes)
	assert.Equal(t, int64(300), snap.DownloadedBytes)

	for _, task := range done {
		assert.Equal(t, StatusCompleted, task.Status)

		content, err := os.ReadFile(task.DestPath)
		require.NoError(t, err)
		assert.Len(t, content, int(task.TotalBytes))
	}
}

func TestProcess_OneCompletesOneFailsPermanently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/good" {
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("payload"))

			return
		}

		http.NotFound(w, r)
	}))
	defer srv.Close()

	e := newProcessEngine(t, Config{})
	e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", srv.URL+"/good", srv.URL+"/missing")})

	drain(t, e.Process(context.Background()))

	snap := e.Snapshot()
	assert.Equal(t, 1, snap.Completed)
	assert.Equal(t, 1, snap.Failed)

	failed := e.FailedTasks()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Part.DownloadURL, "/missing")
	assert.NotEmpty(t, failed[0].Error)
}

func TestProcess_SendsRefererAndRevisesDestination(t *testing.T) {
	var gotReferer string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="Alpha Game (USA).7z"`)
		w.Write([]byte("sevenz-payload"))
	}))
	defer srv.Close()

	e := newProcessEngine(t, Config{})
	item := itemWithURLs("Alpha", srv.URL+"/dl")
	e.EnqueueBatch([]catalog.ItemRecord{item})

	done := drain(t, e.Process(context.Background()))
	require.Len(t, done, 1)

	assert.Equal(t, item.DetailURL, gotReferer)
	assert.Equal(t, StatusCompleted, done[0].Status)
	assert.Equal(t, "Alpha Game (USA).7z", filepath.Base(done[0].DestPath))

	_, err := os.Stat(done[0].DestPath)
	require.NoError(t, err)
}

func TestProcess_ContentTypeRevisesExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/x-7z-compressed")
		w.Write([]byte("sevenz-payload"))
	}))
	defer srv.Close()

	e := newProcessEngine(t, Config{})
	e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", srv.URL+"/dl")})

	done := drain(t, e.Process(context.Background()))
	require.Len(t, done, 1)
	assert.Equal(t, "disc_1.7z", filepath.Base(done[0].DestPath))
}

func TestProcess_HTMLResponseIsADownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>slow down</body></html>")
	}))
	defer srv.Close()

	e := newProcessEngine(t, Config{})
	e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", srv.URL+"/dl")})

	done := drain(t, e.Process(context.Background()))
	require.Len(t, done, 1)
	assert.Equal(t, StatusFailed, done[0].Status)
	assert.Contains(t, done[0].Error, "HTML")
}

func TestProcess_ChecksumMismatchFailsAndDeletesFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	e := newProcessEngine(t, Config{})
	tasks := e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", srv.URL+"/dl")})

	e.mu.Lock()
	e.byID[tasks[0].ID].ExpectedChecksum = strings.Repeat("ab", 32)
	e.mu.Unlock()

	done := drain(t, e.Process(context.Background()))
	require.Len(t, done, 1)
	assert.Equal(t, StatusFailed, done[0].Status)

	_, err := os.Stat(done[0].DestPath)
	assert.True(t, os.IsNotExist(err), "failed download must not leave a partial file")
}

func TestProcess_ChecksumMatchAndVerify(t *testing.T) {
	payload := []byte("verified payload")
	sum := sha256.Sum256(payload)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(payload)
	}))
	defer srv.Close()

	e := newProcessEngine(t, Config{})
	tasks := e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", srv.URL+"/dl")})

	e.mu.Lock()
	e.byID[tasks[0].ID].ExpectedChecksum = hex.EncodeToString(sum[:])
	e.mu.Unlock()

	done := drain(t, e.Process(context.Background()))
	require.Len(t, done, 1)
	require.Equal(t, StatusCompleted, done[0].Status)

	ok, err := e.Verify(tasks[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProcess_ExtractsCompletedArchive(t *testing.T) {
	zipBytes := buildTestZip(t, map[string][]byte{"game.bin": []byte("rom-bytes")})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Write(zipBytes)
	}))
	defer srv.Close()

	romDir := t.TempDir()
	namer := &catalog.Namer{BaseDir: romDir, Normalized: true}

	cfg := Config{DownloadDir: t.TempDir(), MaxRetries: 1, BaseDelay: time.Millisecond}
	client := fetch.NewClient(fetch.Config{Timeout: 10 * time.Second})
	e := NewEngine(client, &archive.Extractor{Namer: namer}, nil, nil, cfg)

	e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Chrono Cross", srv.URL+"/dl")})

	done := drain(t, e.Process(context.Background()))
	require.Len(t, done, 1)
	require.Equal(t, StatusCompleted, done[0].Status)

	rom, err := os.ReadFile(filepath.Join(romDir, "psx", "Chrono Cross.bin"))
	require.NoError(t, err)
	assert.Equal(t, "rom-bytes", string(rom))

	_, err = os.Stat(done[0].DestPath)
	assert.True(t, os.IsNotExist(err), "archive should be deleted after extraction")
}

func TestProcess_CancelMidDownloadDeletesPartial(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(bytes.Repeat([]byte("x"), 16*1024))
		w.(http.Flusher).Flush()

		<-release

		w.Write([]byte("tail"))
	}))

	// Unblock the handler before the server teardown waits on it.
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	e := newProcessEngine(t, Config{})
	e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", srv.URL+"/dl")})

	out := e.Process(context.Background())

	// Wait for the stream to make progress, then cancel the engine.
	require.Eventually(t, func() bool {
		return e.Snapshot().DownloadedBytes > 0
	}, 10*time.Second, 10*time.Millisecond)

	e.Cancel()

	done := drain(t, out)
	require.Len(t, done, 1)
	assert.Equal(t, StatusCancelled, done[0].Status)

	_, err := os.Stat(done[0].DestPath)
	assert.True(t, os.IsNotExist(err), "cancelled download must not leave a partial file")
}

func TestProcess_HistorySkipsDownloadedParts(t *testing.T) {
	history := &fakeHistory{downloaded: map[string]bool{"Alpha-1": true}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	cfg := Config{DownloadDir: t.TempDir(), MaxRetries: 1, BaseDelay: time.Millisecond}
	client := fetch.NewClient(fetch.Config{Timeout: 10 * time.Second})
	e := NewEngine(client, nil, nil, history, cfg)

	e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", srv.URL+"/skip", srv.URL+"/dl")})

	done := drain(t, e.Process(context.Background()))
	require.Len(t, done, 2)

	assert.Equal(t, 2, e.Snapshot().Completed)
	assert.Len(t, history.tracked, 1, "only the real download is recorded")
	assert.Equal(t, "Alpha-2", history.tracked[0].MediaID)
}

func TestBumpRetry_CancelDuringFailingAttemptStaysCancelled(t *testing.T) {
	e := newProcessEngine(t, Config{MaxRetries: 3})
	e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", "https://dl.example.com/one")})

	task := e.claimNext()
	require.NotNil(t, task)
	require.Equal(t, StatusDownloading, task.Status)

	e.Cancel()
	require.Equal(t, StatusCancelled, task.Status)

	retries, live := e.bumpRetry(task, fmt.Errorf("connection reset"))

	assert.False(t, live, "a cancelled task must not be requeued")
	assert.Zero(t, retries)
	assert.Equal(t, StatusCancelled, task.Status)
	assert.Equal(t, 1, e.Snapshot().Cancelled)
}

func TestProcess_CancelDuringFailingAttemptEndsCancelled(t *testing.T) {
	failing := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "1024")
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(bytes.Repeat([]byte("x"), 64))
		w.(http.Flusher).Flush()

		<-failing

		// Closing short of Content-Length surfaces as a read error.
	}))

	t.Cleanup(srv.Close)

	e := newProcessEngine(t, Config{MaxRetries: 3, BaseDelay: time.Hour})
	e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", srv.URL+"/dl")})

	out := e.Process(context.Background())

	require.Eventually(t, func() bool {
		return e.Snapshot().DownloadedBytes > 0
	}, 10*time.Second, 10*time.Millisecond)

	// Cancel first, then let the attempt fail; the task must not bounce
	// back to pending through the retry path.
	e.Cancel()
	close(failing)

	done := drain(t, out)
	require.Len(t, done, 1)
	assert.Equal(t, StatusCancelled, done[0].Status)
	assert.Zero(t, done[0].RetryCount)
}

func TestProcess_HistoryCheckErrorDegradesToDownload(t *testing.T) {
	history := &fakeHistory{checkErr: fmt.Errorf("database is locked")}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	var logBuf bytes.Buffer
	ctx := logctx.WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&logBuf, nil)))

	cfg := Config{DownloadDir: t.TempDir(), MaxRetries: 1, BaseDelay: time.Millisecond}
	client := fetch.NewClient(fetch.Config{Timeout: 10 * time.Second})
	e := NewEngine(client, nil, nil, history, cfg)

	e.EnqueueBatch([]catalog.ItemRecord{itemWithURLs("Alpha", srv.URL+"/dl")})

	done := drain(t, e.Process(ctx))
	require.Len(t, done, 1)
	assert.Equal(t, StatusCompleted, done[0].Status)
	assert.Contains(t, logBuf.String(), "failed to check download history")
	assert.Contains(t, logBuf.String(), "database is locked")
}

func TestBackoffDelay(t *testing.T) {
	e := NewEngine(nil, nil, nil, nil, Config{BaseDelay: time.Second})

	rateLimited := &fetch.RateLimitError{URL: "https://dl.example.com"}

	assert.Equal(t, 2*time.Second, e.backoffDelay(rateLimited, 1))
	assert.Equal(t, 4*time.Second, e.backoffDelay(rateLimited, 2))
	assert.Equal(t, 8*time.Second, e.backoffDelay(rateLimited, 3))
	assert.Equal(t, 30*time.Second, e.backoffDelay(rateLimited, 10), "rate-limit waits cap at 30s")

	plain := fmt.Errorf("connection reset")
	assert.Equal(t, time.Second, e.backoffDelay(plain, 1))
	assert.Equal(t, 2*time.Second, e.backoffDelay(plain, 2))
	assert.Equal(t, 3*time.Second, e.backoffDelay(plain, 3))
}

func buildTestZip(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)

		_, err = f.Write(content)
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())

	return buf.Bytes()
}

type fakeHistory struct {
	downloaded map[string]bool
	tracked    []storage.HistoryRecord
	checkErr   error
}

func (f *fakeHistory) IsDownloaded(mediaID string) (bool, error) {
	return f.downloaded[mediaID], f.checkErr
}

func (f *fakeHistory) GetHistory() ([]storage.HistoryRecord, error) {
	return f.tracked, nil
}

func (f *fakeHistory) TrackDownload(record storage.HistoryRecord) error {
	f.tracked = append(f.tracked, record)

	return nil
}
