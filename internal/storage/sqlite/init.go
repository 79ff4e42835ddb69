package sqlite

import (
	"database/sql"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// Open opens the history database at path and creates the schema if needed.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS downloads (
		id INTEGER PRIMARY KEY,
		media_id TEXT UNIQUE,
		title TEXT,
		category TEXT,
		part_label TEXT,
		file_path TEXT,
		checksum TEXT,
		downloaded_at DATETIME
	)`)

	if err != nil {
		db.Close()

		return nil, err
	}

	return db, nil
}
