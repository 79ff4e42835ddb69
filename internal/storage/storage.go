// Package storage defines the download-history repository contract. The
// history is what lets an unattended re-run skip parts it already fetched;
// the live queue itself is never persisted.
package storage

import (
	"errors"
	"time"
)

// ErrDownloaded is returned when a part has already been downloaded
// according to the history.
var ErrDownloaded = errors.New("part already downloaded")

// HistoryRecord represents one completed download.
type HistoryRecord struct {
	MediaID      string
	Title        string
	Category     string
	PartLabel    string
	FilePath     string
	Checksum     string
	DownloadedAt time.Time
}

type HistoryReadRepository interface {
	IsDownloaded(mediaID string) (bool, error)
	GetHistory() ([]HistoryRecord, error)
}

type HistoryWriteRepository interface {
	TrackDownload(record HistoryRecord) error
}

// HistoryRepository is the full read/write contract the queue engine uses.
type HistoryRepository interface {
	HistoryReadRepository
	HistoryWriteRepository
}
