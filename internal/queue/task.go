package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/seliux/vaultgrab/internal/catalog"
)

// Status is a download task state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// transitions is the closed set of legal status moves. Downloading back to
// pending is the retry re-queue; failed or cancelled to pending is the
// explicit retry action. Completed is final.
var transitions = map[Status]map[Status]struct{}{
	StatusPending:     statusSet(StatusDownloading, StatusCancelled),
	StatusDownloading: statusSet(StatusPaused, StatusCompleted, StatusFailed, StatusCancelled, StatusPending),
	StatusPaused:      statusSet(StatusDownloading, StatusCancelled),
	StatusFailed:      statusSet(StatusPending),
	StatusCancelled:   statusSet(StatusPending),
	StatusCompleted:   {},
}

func statusSet(ss ...Status) map[Status]struct{} {
	set := make(map[Status]struct{}, len(ss))
	for _, s := range ss {
		set[s] = struct{}{}
	}

	return set
}

// CanTransitionTo reports whether the move from s to target is legal.
func (s Status) CanTransitionTo(target Status) bool {
	_, ok := transitions[s][target]

	return ok
}

// Terminal reports whether s ends a task attempt.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TransitionError is returned when a status move is rejected.
type TransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal status transition %s -> %s for task %s", e.From, e.To, e.TaskID)
}

// Task is one queued download of a single part. Fields are mutated only by
// the engine while it holds the engine lock; callers always receive copies.
type Task struct {
	ID       string             `json:"id"`
	Item     catalog.ItemRecord `json:"item"`
	Part     catalog.PartInfo   `json:"part"`
	DestPath string             `json:"dest_path"`

	Status           Status  `json:"status"`
	BytesDownloaded  int64   `json:"bytes_downloaded"`
	TotalBytes       int64   `json:"total_bytes"`
	Speed            float64 `json:"speed"` // bytes per second over the last sample window
	Error            string  `json:"error,omitempty"`
	ExpectedChecksum string  `json:"expected_checksum,omitempty"`
	RetryCount       int     `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
}

func newTask(item catalog.ItemRecord, part catalog.PartInfo, destPath string) *Task {
	return &Task{
		ID:         uuid.NewString(),
		Item:       item,
		Part:       part,
		DestPath:   destPath,
		Status:     StatusPending,
		TotalBytes: part.Size,
		CreatedAt:  time.Now().UTC(),
	}
}

// transition applies a status move, rejecting anything outside the table.
func (t *Task) transition(to Status) error {
	if !t.Status.CanTransitionTo(to) {
		return &TransitionError{TaskID: t.ID, From: t.Status, To: to}
	}

	t.Status = to

	return nil
}
