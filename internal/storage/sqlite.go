// Package storage persists patch freshness records in a sqlite database
// under the app data directory. One row per downloaded patch, keyed by
// kernel series and filename; the whole registry is reloaded on demand.
package storage

import (
	"database/sql"
	"time"

	"github.com/tkgforge/tkgforge/internal/patches"
	_ "modernc.org/sqlite"
)

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS patches (
		series TEXT NOT NULL,
		filename TEXT NOT NULL,
		source_url TEXT,
		catalog_id TEXT,
		sha256 TEXT NOT NULL,
		downloaded_at TIMESTAMP NOT NULL,
		etag TEXT,
		last_modified TEXT,
		status TEXT NOT NULL DEFAULT 'unknown',
		PRIMARY KEY (series, filename)
	);

	CREATE INDEX IF NOT EXISTS idx_patches_series ON patches(series);
	`

	_, err := s.db.Exec(schema)
	return err
}

// RecordDownload inserts or replaces the record for a freshly downloaded
// patch.
func (s *Storage) RecordDownload(meta patches.Meta) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO patches (series, filename, source_url, catalog_id, sha256, downloaded_at, etag, last_modified, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.Series, meta.Filename, meta.SourceURL, meta.CatalogID,
		meta.SHA256, meta.DownloadedAt, meta.ETag, meta.LastModified, string(meta.Status),
	)
	return err
}

// Get returns the record for one patch, or nil if none is remembered.
func (s *Storage) Get(series, filename string) (*patches.Meta, error) {
	row := s.db.QueryRow(
		`SELECT series, filename, source_url, catalog_id, sha256, downloaded_at, etag, last_modified, status
		 FROM patches WHERE series = ? AND filename = ?`, series, filename,
	)

	meta, err := scanMeta(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// All returns every remembered record.
func (s *Storage) All() ([]patches.Meta, error) {
	return s.query(`SELECT series, filename, source_url, catalog_id, sha256, downloaded_at, etag, last_modified, status
		FROM patches ORDER BY series, filename`)
}

// AllForSeries returns the records for one kernel series.
func (s *Storage) AllForSeries(series string) ([]patches.Meta, error) {
	return s.query(`SELECT series, filename, source_url, catalog_id, sha256, downloaded_at, etag, last_modified, status
		FROM patches WHERE series = ? ORDER BY filename`, series)
}

func (s *Storage) query(q string, args ...any) ([]patches.Meta, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metas []patches.Meta
	for rows.Next() {
		meta, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		metas = append(metas, *meta)
	}
	return metas, rows.Err()
}

// UpdateStatus persists the latest staleness classification for one patch.
func (s *Storage) UpdateStatus(series, filename string, status patches.Status) error {
	_, err := s.db.Exec(
		`UPDATE patches SET status = ? WHERE series = ? AND filename = ?`,
		string(status), series, filename,
	)
	return err
}

// Remove forgets the record for one patch.
func (s *Storage) Remove(series, filename string) error {
	_, err := s.db.Exec(`DELETE FROM patches WHERE series = ? AND filename = ?`, series, filename)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeta(row scanner) (*patches.Meta, error) {
	var meta patches.Meta
	var sourceURL, catalogID, etag, lastModified sql.NullString
	var downloadedAt time.Time
	var status string

	err := row.Scan(
		&meta.Series, &meta.Filename, &sourceURL, &catalogID,
		&meta.SHA256, &downloadedAt, &etag, &lastModified, &status,
	)
	if err != nil {
		return nil, err
	}

	meta.SourceURL = sourceURL.String
	meta.CatalogID = catalogID.String
	meta.ETag = etag.String
	meta.LastModified = lastModified.String
	meta.DownloadedAt = downloadedAt
	meta.Status = patches.Status(status)

	return &meta, nil
}
