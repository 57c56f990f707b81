// Package store persists the file hashes of past analyses.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultDir is the store directory, relative to the workspace
const DefaultDir = ".filestatus"

// DefaultFile is the database file name inside DefaultDir
const DefaultFile = "analysis.db"

// Analysis is one recorded analysis of a project
type Analysis struct {
	UUID       string    `json:"uuid"`
	ProjectKey string    `json:"projectKey"`
	CreatedAt  time.Time `json:"createdAt"`
	FileCount  int       `json:"fileCount"`
}

// FileHashes is the stored record of a file from an analysis
type FileHashes struct {
	FileUUID string `json:"fileUuid"`
	Path     string `json:"path"`
	SrcHash  string `json:"srcHash"`
	Size     int64  `json:"size"`
	ModTime  int64  `json:"modTime"` // unix seconds
}

// Store is the SQLite-backed analysis database
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes RecordAnalysis
}

// Open creates or opens the database at dbPath
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		uuid TEXT PRIMARY KEY,
		project_key TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_project ON analyses(project_key, created_at);

	-- Only the files of the latest analysis of each project are kept
	CREATE TABLE IF NOT EXISTS file_sources (
		file_uuid TEXT NOT NULL,
		project_key TEXT NOT NULL,
		path TEXT NOT NULL,
		src_hash TEXT NOT NULL,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		analysis_uuid TEXT NOT NULL,
		PRIMARY KEY (project_key, file_uuid)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LastAnalysis returns the most recent analysis of the project, or nil if
// the project has never been analyzed
func (s *Store) LastAnalysis(ctx context.Context, projectKey string) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT a.uuid, a.project_key, a.created_at,
			(SELECT COUNT(*) FROM file_sources f WHERE f.analysis_uuid = a.uuid)
		FROM analyses a
		WHERE a.project_key = ?
		ORDER BY a.created_at DESC, a.rowid DESC
		LIMIT 1`, projectKey)

	var a Analysis
	var created int64
	if err := row.Scan(&a.UUID, &a.ProjectKey, &created, &a.FileCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last analysis: %w", err)
	}
	a.CreatedAt = time.UnixMilli(created).UTC()
	return &a, nil
}

// FileHashes returns the stored file records of the project's latest
// analysis, keyed by file uuid
func (s *Store) FileHashes(ctx context.Context, projectKey string) (map[string]FileHashes, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_uuid, path, src_hash, size, mod_time
		FROM file_sources
		WHERE project_key = ?`, projectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query file hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]FileHashes)
	for rows.Next() {
		var fh FileHashes
		if err := rows.Scan(&fh.FileUUID, &fh.Path, &fh.SrcHash, &fh.Size, &fh.ModTime); err != nil {
			return nil, fmt.Errorf("failed to scan file hash: %w", err)
		}
		hashes[fh.FileUUID] = fh
	}
	return hashes, rows.Err()
}

// RecordAnalysis stores a new analysis of the project, replacing the file
// records of the previous one
func (s *Store) RecordAnalysis(ctx context.Context, projectKey string, files []FileHashes) (*Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := &Analysis{
		UUID:       uuid.NewString(),
		ProjectKey: projectKey,
		CreatedAt:  time.Now().UTC(),
		FileCount:  len(files),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO analyses (uuid, project_key, created_at) VALUES (?, ?, ?)`,
		a.UUID, projectKey, a.CreatedAt.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to insert analysis: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_sources WHERE project_key = ?`, projectKey); err != nil {
		return nil, fmt.Errorf("failed to clear previous file hashes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_sources (file_uuid, project_key, path, src_hash, size, mod_time, analysis_uuid)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range files {
		if _, err := stmt.ExecContext(ctx, f.FileUUID, projectKey, f.Path, f.SrcHash, f.Size, f.ModTime, a.UUID); err != nil {
			return nil, fmt.Errorf("failed to insert file hash for %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit analysis: %w", err)
	}
	return a, nil
}
