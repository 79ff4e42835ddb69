package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/seliux/vaultgrab/internal/apperr"
	"github.com/seliux/vaultgrab/internal/catalog"
	"github.com/seliux/vaultgrab/internal/fetch"
	"github.com/seliux/vaultgrab/internal/integrity"
	"github.com/seliux/vaultgrab/internal/logctx"
	"github.com/seliux/vaultgrab/internal/storage"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	speedSampleWindow = 500 * time.Millisecond
	maxRateLimitWait  = 30 * time.Second
)

// errInterrupted marks an attempt stopped by cancellation rather than
// failure; it ends the task as cancelled, not failed.
var errInterrupted = errors.New("download interrupted")

var dispositionFilename = regexp.MustCompile(`filename="?([^";\n]+)"?`)

// runTask drives one task through attempt/retry until a terminal state.
func (e *Engine) runTask(ctx context.Context, task *Task) {
	ctx = logctx.With(ctx,
		"task_id", task.ID,
		"title", task.Item.Title,
		"part", task.Part.Label,
	)
	logger := logctx.LoggerFromContext(ctx)

	start := time.Now()

	if e.tel != nil {
		e.tel.IncrementActiveDownloads()
		defer e.tel.DecrementActiveDownloads()
	}

	for {
		err := e.attempt(ctx, task)
		if err == nil {
			e.complete(ctx, task)
			e.recordOutcome("completed", start)

			return
		}

		if errors.Is(err, storage.ErrDownloaded) {
			logger.Info("part already downloaded, skipping")
			e.finish(task, StatusCompleted, "")
			e.recordOutcome("skipped", start)

			return
		}

		if errors.Is(err, errInterrupted) || ctx.Err() != nil {
			e.removePartial(ctx, task)
			e.finish(task, StatusCancelled, "")
			e.recordOutcome("cancelled", start)

			return
		}

		e.removePartial(ctx, task)

		retries, live := e.bumpRetry(task, err)
		if !live {
			logger.Info("task cancelled while failing, not retrying")
			e.finish(task, StatusCancelled, "")
			e.recordOutcome("cancelled", start)

			return
		}

		if retries >= e.cfg.MaxRetries {
			appErr := e.describe(err, task)
			logger.Error("download failed permanently",
				"retries", retries,
				"category", string(appErr.Category),
				"actions", strings.Join(appErr.Actions, "; "),
				"detail", appErr.Detail,
				"err", err,
			)

			e.finish(task, StatusFailed, appErr.Message)
			e.recordOutcome("failed", start)

			return
		}

		wait := e.backoffDelay(err, retries)
		logger.Warn("download failed, will retry", "retry", retries, "wait", wait, "err", err)

		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			e.finish(task, StatusCancelled, "")
			e.recordOutcome("cancelled", start)

			return
		}

		if !e.reclaim(task) {
			// Cancelled while waiting out the backoff.
			return
		}
	}
}

// attempt runs the full pipeline once: history check, mkdir, stream,
// verify, extract.
func (e *Engine) attempt(ctx context.Context, task *Task) error {
	if e.history != nil {
		done, err := e.history.IsDownloaded(task.Part.MediaID)
		if err != nil {
			// Degrade to "not downloaded", but keep the broken DB visible.
			logctx.LoggerFromContext(ctx).Warn("failed to check download history",
				"media_id", task.Part.MediaID, "err", err)
		}

		if done {
			return storage.ErrDownloaded
		}
	}

	if err := os.MkdirAll(filepath.Dir(task.DestPath), dirPerm); err != nil {
		return apperr.Filesystem("failed to create the download directory", err, filepath.Dir(task.DestPath))
	}

	headers := http.Header{}
	headers.Set("Referer", task.Item.DetailURL)

	resp, err := e.client.Get(ctx, task.Part.DownloadURL, headers)
	if err != nil {
		if ctx.Err() != nil {
			return errInterrupted
		}

		return err
	}
	defer resp.Body.Close()

	// An HTML body here means the endpoint refused us (rate limit or bad
	// request), never a real payload.
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/html") {
		return apperr.Download("the endpoint returned an HTML page instead of a file", nil, task.Part.DownloadURL, 0)
	}

	e.mu.Lock()
	if resp.ContentLength > 0 {
		task.TotalBytes = resp.ContentLength
	}
	e.mu.Unlock()

	e.reviseDestination(ctx, task, resp.Header)

	if err := e.stream(ctx, task, resp.Body); err != nil {
		return err
	}

	if task.ExpectedChecksum != "" {
		ok, err := integrity.VerifyFile(task.DestPath, task.ExpectedChecksum)
		if err != nil {
			return apperr.Filesystem("failed to read the download back for verification", err, task.DestPath)
		}

		if !ok {
			return apperr.Validation("the downloaded file does not match its expected checksum", nil)
		}
	}

	if e.extractor != nil {
		if err := e.extractor.Process(ctx, task.DestPath, task.Item.Category, task.Item.Title, task.Part.Label); err != nil {
			return fmt.Errorf("failed to post-process archive: %w", err)
		}
	}

	return nil
}

// stream copies the body to disk chunk by chunk, waiting on the pause gate
// and checking cancellation at every chunk boundary. Speed is sampled over
// a fixed wall-time window.
func (e *Engine) stream(ctx context.Context, task *Task, body io.Reader) error {
	out, err := os.OpenFile(task.DestPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}
	defer out.Close()

	buf := make([]byte, e.cfg.ChunkSize)
	lastSample := time.Now()

	var sampleBytes int64

	for {
		if err := e.waitGate(ctx); err != nil {
			return errInterrupted
		}

		if e.isCancelled() {
			return errInterrupted
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return apperr.Filesystem("failed to write the download to disk", werr, task.DestPath)
			}

			e.mu.Lock()
			task.BytesDownloaded += int64(n)
			sampleBytes += int64(n)

			if elapsed := time.Since(lastSample); elapsed >= speedSampleWindow {
				task.Speed = float64(sampleBytes) / elapsed.Seconds()
				lastSample = time.Now()
				sampleBytes = 0
			}
			e.mu.Unlock()

			if e.tel != nil {
				e.tel.AddBytesDownloaded(int64(n))
			}
		}

		if readErr == io.EOF {
			return nil
		}

		if readErr != nil {
			if ctx.Err() != nil {
				return errInterrupted
			}

			return apperr.Download("the connection dropped mid-download", readErr, task.Part.DownloadURL, task.BytesDownloaded)
		}
	}
}

// reviseDestination updates the destination once response headers reveal
// the server's filename (Content-Disposition) or, failing that, a better
// extension (Content-Type).
func (e *Engine) reviseDestination(ctx context.Context, task *Task, headers http.Header) {
	logger := logctx.LoggerFromContext(ctx)

	if m := dispositionFilename.FindStringSubmatch(headers.Get("Content-Disposition")); m != nil {
		name := catalog.SanitizeTitle(strings.TrimSuffix(m[1], filepath.Ext(m[1]))) + strings.ToLower(filepath.Ext(m[1]))

		e.mu.Lock()
		task.DestPath = filepath.Join(filepath.Dir(task.DestPath), name)
		e.mu.Unlock()

		logger.Debug("destination revised from content disposition", "dest", name)

		return
	}

	var ext string

	switch {
	case strings.Contains(headers.Get("Content-Type"), "x-7z-compressed"):
		ext = ".7z"
	case strings.Contains(headers.Get("Content-Type"), "zip"):
		ext = ".zip"
	default:
		return
	}

	e.mu.Lock()
	base := strings.TrimSuffix(filepath.Base(task.DestPath), filepath.Ext(task.DestPath))
	task.DestPath = filepath.Join(filepath.Dir(task.DestPath), base+ext)
	e.mu.Unlock()
}

// backoffDelay computes the wait before a retry. Rate-limit failures back
// off exponentially with a 30s cap; everything else waits a linear multiple
// of the base delay.
func (e *Engine) backoffDelay(err error, retries int) time.Duration {
	if isRateLimited(err) {
		wait := e.cfg.BaseDelay << retries
		if wait > maxRateLimitWait {
			wait = maxRateLimitWait
		}

		return wait
	}

	return e.cfg.BaseDelay * time.Duration(retries)
}

func isRateLimited(err error) bool {
	return fetch.IsRateLimit(err) || strings.Contains(err.Error(), "429")
}

// describe converts a terminal failure into the operator-facing error,
// classifying raw transport failures along the way.
func (e *Engine) describe(err error, task *Task) *apperr.Error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}

	var (
		clientErr *fetch.ClientError
		serverErr *fetch.ServerError
	)

	switch {
	case fetch.IsRateLimit(err):
		return apperr.Network("the download endpoint is rate limiting us", err, task.Part.DownloadURL, http.StatusTooManyRequests)
	case errors.As(err, &clientErr):
		return apperr.Network("the download request was rejected", err, task.Part.DownloadURL, clientErr.StatusCode)
	case errors.As(err, &serverErr):
		return apperr.Network("the download endpoint is having trouble", err, task.Part.DownloadURL, serverErr.StatusCode)
	}

	return apperr.Download("the download could not be completed", err, task.Part.DownloadURL, 0)
}

// complete marks the task done and records it in the download history.
func (e *Engine) complete(ctx context.Context, task *Task) {
	logger := logctx.LoggerFromContext(ctx)

	e.mu.Lock()
	_ = task.transition(StatusCompleted)
	task.Speed = 0
	task.Error = ""
	bytes := task.BytesDownloaded
	e.mu.Unlock()

	logger.Info("download completed", "dest", task.DestPath, "size", humanize.Bytes(uint64(bytes)))

	if e.history == nil {
		return
	}

	record := storage.HistoryRecord{
		MediaID:      task.Part.MediaID,
		Title:        task.Item.Title,
		Category:     task.Item.Category,
		PartLabel:    task.Part.Label,
		FilePath:     task.DestPath,
		Checksum:     task.ExpectedChecksum,
		DownloadedAt: time.Now().UTC(),
	}

	if err := e.history.TrackDownload(record); err != nil {
		logger.Error("failed to record download history", "err", err)
	}
}

// finish applies a terminal status, tolerating a task already moved there
// by an engine-wide cancel.
func (e *Engine) finish(task *Task, status Status, errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if task.Status != status {
		_ = task.transition(status)
	}

	task.Speed = 0
	task.Error = errMsg
}

// bumpRetry requeues the task for another attempt and returns the new
// retry count. Bytes are zeroed because the partial file is gone. An
// engine-wide cancel may have claimed the task while the attempt was
// failing; in that case it stays cancelled and the second return is false.
func (e *Engine) bumpRetry(task *Task, err error) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelled || task.Status != StatusDownloading {
		return task.RetryCount, false
	}

	task.RetryCount++
	task.Error = err.Error()
	task.BytesDownloaded = 0
	task.Speed = 0

	if task.RetryCount < e.cfg.MaxRetries {
		_ = task.transition(StatusPending)
	}

	return task.RetryCount, true
}

// reclaim moves a requeued task back to downloading after its backoff,
// unless the engine was cancelled in the meantime.
func (e *Engine) reclaim(task *Task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancelled || task.Status != StatusPending {
		return false
	}

	return task.transition(StatusDownloading) == nil
}

// removePartial deletes a partial download left by a failed or cancelled
// attempt.
func (e *Engine) removePartial(ctx context.Context, task *Task) {
	e.mu.Lock()
	dest := task.DestPath
	e.mu.Unlock()

	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		logctx.LoggerFromContext(ctx).Warn("failed to remove partial file", "path", dest, "err", err)
	}
}

func (e *Engine) recordOutcome(status string, start time.Time) {
	if e.tel != nil {
		e.tel.RecordDownload(status, time.Since(start))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
