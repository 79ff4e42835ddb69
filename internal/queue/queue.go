// Package queue is the download queue engine: an in-memory, FIFO task list
// processed strictly sequentially, with retry/backoff, pause/resume and
// cooperative cancellation. Completed files are checksum-verified and handed
// to the archive post-processor as part of each task's pipeline.
package queue

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/seliux/vaultgrab/internal/archive"
	"github.com/seliux/vaultgrab/internal/catalog"
	"github.com/seliux/vaultgrab/internal/integrity"
	"github.com/seliux/vaultgrab/internal/logctx"
	"github.com/seliux/vaultgrab/internal/storage"
	"github.com/seliux/vaultgrab/internal/telemetry"
)

const (
	defaultMaxRetries = 3
	defaultChunkSize  = 8192
	defaultBaseDelay  = time.Second
)

// Getter is the transport used for download requests.
type Getter interface {
	Get(ctx context.Context, url string, headers http.Header) (*http.Response, error)
}

// Config holds queue tuning knobs.
type Config struct {
	DownloadDir string
	TaskDelay   time.Duration // wait between consecutive tasks
	MaxRetries  int
	BaseDelay   time.Duration // backoff unit for failed attempts
	ChunkSize   int
}

// Snapshot is the derived, point-in-time queue state. It is always computed
// from the task list, never stored.
type Snapshot struct {
	TotalTasks      int   `json:"total_tasks"`
	Pending         int   `json:"pending"`
	Downloading     int   `json:"downloading"`
	Paused          int   `json:"paused"`
	Completed       int   `json:"completed"`
	Failed          int   `json:"failed"`
	Cancelled       int   `json:"cancelled"`
	TotalBytes      int64 `json:"total_bytes"`
	DownloadedBytes int64 `json:"downloaded_bytes"`
	IsPaused        bool  `json:"is_paused"`
}

// Engine owns the task list. All mutation happens under mu; the pause gate
// is a channel swapped on pause and closed on resume so that chunk writes
// can wait on it without polling.
type Engine struct {
	client    Getter
	extractor *archive.Extractor
	tel       *telemetry.Telemetry
	history   storage.HistoryRepository
	cfg       Config

	mu        sync.Mutex
	tasks     []*Task
	byID      map[string]*Task
	paused    bool
	cancelled bool
	gate      chan struct{}
}

func NewEngine(client Getter, extractor *archive.Extractor, tel *telemetry.Telemetry, history storage.HistoryRepository, cfg Config) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}

	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}

	gate := make(chan struct{})
	close(gate)

	return &Engine{
		client:    client,
		extractor: extractor,
		tel:       tel,
		history:   history,
		cfg:       cfg,
		byID:      make(map[string]*Task),
		gate:      gate,
	}
}

// Enqueue adds one part of an item as a pending task and returns a copy.
func (e *Engine) Enqueue(item catalog.ItemRecord, part catalog.PartInfo) Task {
	task := newTask(item, part, e.destFor(item, part))

	e.mu.Lock()
	defer e.mu.Unlock()

	e.tasks = append(e.tasks, task)
	e.byID[task.ID] = task

	return *task
}

// EnqueueBatch enqueues every part of every item, in order.
func (e *Engine) EnqueueBatch(items []catalog.ItemRecord) []Task {
	var out []Task

	for _, item := range items {
		for _, part := range item.Parts {
			out = append(out, e.Enqueue(item, part))
		}
	}

	return out
}

// Dequeue removes a task by ID. The currently downloading task cannot be
// removed; cancel it first.
func (e *Engine) Dequeue(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.byID[id]
	if !ok || task.Status == StatusDownloading {
		return false
	}

	delete(e.byID, id)

	for i, t := range e.tasks {
		if t.ID == id {
			e.tasks = append(e.tasks[:i], e.tasks[i+1:]...)

			break
		}
	}

	return true
}

// Clear empties the queue.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tasks = nil
	e.byID = make(map[string]*Task)
}

// Task returns a copy of the task with the given ID.
func (e *Engine) Task(id string) (Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.byID[id]
	if !ok {
		return Task{}, false
	}

	return *task, true
}

// Tasks returns copies of every task in queue order.
func (e *Engine) Tasks() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, *t)
	}

	return out
}

// FailedTasks returns copies of the permanently failed tasks.
func (e *Engine) FailedTasks() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Task

	for _, t := range e.tasks {
		if t.Status == StatusFailed {
			out = append(out, *t)
		}
	}

	return out
}

// Snapshot derives the aggregate queue state from the task list.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{TotalTasks: len(e.tasks), IsPaused: e.paused}

	for _, t := range e.tasks {
		switch t.Status {
		case StatusPending:
			snap.Pending++
		case StatusDownloading:
			snap.Downloading++
		case StatusPaused:
			snap.Paused++
		case StatusCompleted:
			snap.Completed++
		case StatusFailed:
			snap.Failed++
		case StatusCancelled:
			snap.Cancelled++
		}

		snap.TotalBytes += t.TotalBytes
		snap.DownloadedBytes += t.BytesDownloaded
	}

	return snap
}

// Pause closes the gate for chunk writes and relabels the in-flight task.
// Calling it while already paused is a no-op.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return
	}

	e.paused = true
	e.gate = make(chan struct{})

	for _, t := range e.tasks {
		if t.Status == StatusDownloading {
			_ = t.transition(StatusPaused)
		}
	}
}

// Resume reopens the gate and relabels paused tasks. Calling it while not
// paused is a no-op. Progress counters are untouched by a pause cycle.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.paused {
		return
	}

	e.paused = false
	close(e.gate)

	for _, t := range e.tasks {
		if t.Status == StatusPaused {
			_ = t.transition(StatusDownloading)
		}
	}
}

// IsPaused reports the pause gate state.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.paused
}

// Cancel marks every live task cancelled and stops the processing loop once
// the current task unwinds. A paused engine is unpaused so the in-flight
// stream can observe the cancellation.
func (e *Engine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelled = true

	if e.paused {
		e.paused = false
		close(e.gate)
	}

	for _, t := range e.tasks {
		switch t.Status {
		case StatusPending, StatusDownloading, StatusPaused:
			_ = t.transition(StatusCancelled)
		}
	}
}

// Retry resets a failed or cancelled task back to pending: bytes, error and
// retry counter all return to zero. Retrying a completed task is rejected.
func (e *Engine) Retry(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.byID[id]
	if !ok {
		return fmt.Errorf("no such task: %s", id)
	}

	if err := task.transition(StatusPending); err != nil {
		return err
	}

	task.BytesDownloaded = 0
	task.Speed = 0
	task.Error = ""
	task.RetryCount = 0

	return nil
}

// Verify re-checks a completed task's file against its expected checksum.
// Non-completed tasks are rejected without touching the file.
func (e *Engine) Verify(id string) (bool, error) {
	e.mu.Lock()
	task, ok := e.byID[id]

	var (
		status   Status
		dest     string
		expected string
	)

	if ok {
		status = task.Status
		dest = task.DestPath
		expected = task.ExpectedChecksum
	}
	e.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("no such task: %s", id)
	}

	if status != StatusCompleted {
		return false, fmt.Errorf("task %s is %s, not completed", id, status)
	}

	if expected == "" {
		return false, fmt.Errorf("task %s has no expected checksum", id)
	}

	return integrity.VerifyFile(dest, expected)
}

// Process drains the queue in FIFO order, one task at a time, and emits a
// copy of each task as it reaches a terminal state. The channel closes when
// the queue has no pending tasks left, the context is cancelled, or the
// engine is cancelled.
func (e *Engine) Process(ctx context.Context) <-chan Task {
	out := make(chan Task)

	go func() {
		defer close(out)

		logger := logctx.LoggerFromContext(ctx)

		for {
			if ctx.Err() != nil || e.isCancelled() {
				logger.Info("queue processing stopped")

				return
			}

			task := e.claimNext()
			if task == nil {
				logger.Info("queue drained")

				return
			}

			e.runTask(ctx, task)

			select {
			case out <- e.copyOf(task):
			case <-ctx.Done():
				return
			}

			if err := e.waitTaskDelay(ctx); err != nil {
				return
			}
		}
	}()

	return out
}

// claimNext picks the first pending task and marks it downloading.
func (e *Engine) claimNext() *Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.tasks {
		if t.Status != StatusPending {
			continue
		}

		if err := t.transition(StatusDownloading); err != nil {
			continue
		}

		return t
	}

	return nil
}

func (e *Engine) copyOf(task *Task) Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	return *task
}

func (e *Engine) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.cancelled
}

// waitGate blocks while the engine is paused.
func (e *Engine) waitGate(ctx context.Context) error {
	e.mu.Lock()
	gate := e.gate
	e.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-gate:
		return nil
	}
}

func (e *Engine) waitTaskDelay(ctx context.Context) error {
	if e.cfg.TaskDelay <= 0 {
		return nil
	}

	timer := time.NewTimer(e.cfg.TaskDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// destFor builds the initial download destination. The filename may be
// revised mid-download once the server reveals the real one.
func (e *Engine) destFor(item catalog.ItemRecord, part catalog.PartInfo) string {
	name := "disc_" + strconv.Itoa(catalog.PartNumber(part.Label)) + ".zip"

	return filepath.Join(e.cfg.DownloadDir, item.Category, catalog.SanitizeTitle(item.Title), name)
}
