// Package sqlite is the SQLite-backed download-history repository.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/seliux/vaultgrab/internal/storage"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// IsDownloaded reports whether a part has already been fetched.
func (r *HistoryRepository) IsDownloaded(mediaID string) (bool, error) {
	var n int

	err := r.db.QueryRow(`SELECT COUNT(1) FROM downloads WHERE media_id = ?`, mediaID).Scan(&n)
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// GetHistory returns every recorded download, newest first.
func (r *HistoryRepository) GetHistory() ([]storage.HistoryRecord, error) {
	rows, err := r.db.Query(`
		SELECT media_id, title, category, part_label, file_path, checksum, downloaded_at
		FROM downloads
		ORDER BY downloaded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.HistoryRecord

	for rows.Next() {
		var (
			record       storage.HistoryRecord
			checksum     sql.NullString
			downloadedAt string
		)

		if err := rows.Scan(&record.MediaID, &record.Title, &record.Category,
			&record.PartLabel, &record.FilePath, &checksum, &downloadedAt); err != nil {
			return nil, err
		}

		if checksum.Valid {
			record.Checksum = checksum.String
		}

		if ts, err := time.Parse(time.RFC3339, downloadedAt); err == nil {
			record.DownloadedAt = ts
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

// TrackDownload upserts one completed download.
func (r *HistoryRepository) TrackDownload(record storage.HistoryRecord) error {
	downloadedAt := record.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = time.Now().UTC()
	}

	_, err := r.db.Exec(`
		INSERT INTO downloads (media_id, title, category, part_label, file_path, checksum, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(media_id) DO UPDATE SET
			file_path = excluded.file_path,
			checksum = excluded.checksum,
			downloaded_at = excluded.downloaded_at`,
		record.MediaID, record.Title, record.Category, record.PartLabel,
		record.FilePath, record.Checksum, downloadedAt.Format(time.RFC3339))

	return err
}
