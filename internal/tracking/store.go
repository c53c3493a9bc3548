package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"inkdex/internal/config"
)

// Store manages processing state backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the processing database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.DatabasePath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

const noteFileColumns = `id, path, content_hash, modified_at, status, last_run_id,
    error_message, pages_updated, created_at, updated_at`

// StartRun upserts the file row, marks it processing, and returns it with a
// fresh run identifier.
func (s *Store) StartRun(ctx context.Context, path, contentHash string, modifiedAt time.Time) (*NoteFile, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	runID := uuid.NewString()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO note_files (path, content_hash, modified_at, status, last_run_id, error_message, pages_updated, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, '', 0, ?, ?)
         ON CONFLICT(path) DO UPDATE SET
             content_hash = excluded.content_hash,
             modified_at = excluded.modified_at,
             status = excluded.status,
             last_run_id = excluded.last_run_id,
             error_message = '',
             pages_updated = 0,
             updated_at = excluded.updated_at`,
		path, contentHash, modifiedAt.UTC().Format(time.RFC3339Nano),
		StatusProcessing, runID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	return s.GetByPath(ctx, path)
}

// Complete marks a run finished and records how many pages received text.
func (s *Store) Complete(ctx context.Context, id int64, pagesUpdated int) error {
	return s.setStatus(ctx, id, StatusCompleted, "", pagesUpdated)
}

// Fail marks a run failed with the given message.
func (s *Store) Fail(ctx context.Context, id int64, message string) error {
	return s.setStatus(ctx, id, StatusFailed, message, 0)
}

// Skip marks a run skipped, e.g. when no page image was available.
func (s *Store) Skip(ctx context.Context, id int64, reason string) error {
	return s.setStatus(ctx, id, StatusSkipped, reason, 0)
}

func (s *Store) setStatus(ctx context.Context, id int64, status Status, message string, pagesUpdated int) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`UPDATE note_files SET status = ?, error_message = ?, pages_updated = ?, updated_at = ? WHERE id = ?`,
		status, message, pagesUpdated, now, id,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no tracked file with id %d", id)
	}
	return nil
}

// UpdateContent re-records the file's hash and modification time, e.g. after
// an injection rewrote the bytes on disk.
func (s *Store) UpdateContent(ctx context.Context, id int64, contentHash string, modifiedAt time.Time) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`UPDATE note_files SET content_hash = ?, modified_at = ?, updated_at = ? WHERE id = ?`,
		contentHash, modifiedAt.UTC().Format(time.RFC3339Nano), now, id,
	)
	if err != nil {
		return fmt.Errorf("update content hash: %w", err)
	}
	return nil
}

// Unchanged reports whether the file completed a previous run with the same
// content hash.
func (s *Store) Unchanged(ctx context.Context, path, contentHash string) (bool, error) {
	file, err := s.GetByPath(ctx, path)
	if err != nil {
		return false, err
	}
	if file == nil {
		return false, nil
	}
	return file.Status == StatusCompleted && file.ContentHash == contentHash, nil
}

// GetByPath fetches a tracked file by path, or nil when untracked.
func (s *Store) GetByPath(ctx context.Context, path string) (*NoteFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteFileColumns+` FROM note_files WHERE path = ?`, path)
	file, err := scanNoteFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracked file: %w", err)
	}
	return file, nil
}

// List returns every tracked file ordered by path.
func (s *Store) List(ctx context.Context) ([]*NoteFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+noteFileColumns+` FROM note_files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list tracked files: %w", err)
	}
	defer rows.Close()

	var files []*NoteFile
	for rows.Next() {
		file, err := scanNoteFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// Summary aggregates counts per lifecycle state.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM note_files GROUP BY status`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize tracked files: %w", err)
	}
	defer rows.Close()

	var summary Summary
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, fmt.Errorf("scan summary row: %w", err)
		}
		summary.Total += count
		switch status {
		case StatusProcessing, StatusPending:
			summary.Processing += count
		case StatusCompleted:
			summary.Completed += count
		case StatusFailed:
			summary.Failed += count
		case StatusSkipped:
			summary.Skipped += count
		}
	}
	return summary, rows.Err()
}

// RecordPageResult stores one page's recognition outcome for a run.
func (s *Store) RecordPageResult(ctx context.Context, noteFileID int64, runID string, result PageResult) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO page_results (note_file_id, run_id, page_index, line_count, text, derived_from_background, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		noteFileID, runID, result.PageIndex, result.LineCount, result.Text,
		boolToInt(result.DerivedFromBackground), now,
	)
	if err != nil {
		return fmt.Errorf("record page result: %w", err)
	}
	return nil
}

// PageResults returns the page outcomes of the file's most recent run in page
// order.
func (s *Store) PageResults(ctx context.Context, noteFileID int64, runID string) ([]PageResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_index, line_count, text, derived_from_background
         FROM page_results WHERE note_file_id = ? AND run_id = ? ORDER BY page_index`,
		noteFileID, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query page results: %w", err)
	}
	defer rows.Close()

	var results []PageResult
	for rows.Next() {
		var result PageResult
		var derived int
		if err := rows.Scan(&result.PageIndex, &result.LineCount, &result.Text, &derived); err != nil {
			return nil, fmt.Errorf("scan page result: %w", err)
		}
		result.DerivedFromBackground = derived != 0
		results = append(results, result)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNoteFile(row rowScanner) (*NoteFile, error) {
	var file NoteFile
	var modifiedAt, createdAt, updatedAt string
	if err := row.Scan(
		&file.ID, &file.Path, &file.ContentHash, &modifiedAt, &file.Status,
		&file.LastRunID, &file.ErrorMessage, &file.PagesUpdated, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	file.ModifiedAt = parseTime(modifiedAt)
	file.CreatedAt = parseTime(createdAt)
	file.UpdatedAt = parseTime(updatedAt)
	return &file, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
