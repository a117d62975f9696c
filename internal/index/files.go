package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// fileSelectCols is the column list shared by all file row queries.
const fileSelectCols = `SELECT id, name, size, type, iv, salt, status, created_at FROM files `

// CreateFile inserts a new pending file. If an active file with the same id
// exists it fails with ErrConflict. A pending file with the same id is
// replaced: its row (and chunks, via cascade) are deleted first, so a
// re-init always starts from a clean slate. Any external records orphaned
// by the replacement are swept later by abort or purge.
func (s *Store) CreateFile(ctx context.Context, f File) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin create file: %w", err)
	}
	defer tx.Rollback()

	var status string

	err = tx.QueryRowContext(ctx, `SELECT status FROM files WHERE id = ?`, f.ID).Scan(&status)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// New id.
	case err != nil:
		return fmt.Errorf("index: checking existing file %s: %w", f.ID, err)
	case status == StatusActive, status == StatusTrashed:
		return fmt.Errorf("index: create file %s: %w", f.ID, ErrConflict)
	default:
		// Pending: replace. Chunks cascade.
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, f.ID); err != nil {
			return fmt.Errorf("index: replacing pending file %s: %w", f.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO files (id, name, size, type, iv, salt, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, norm.NFC.String(f.Name), f.Size, f.Type, f.IV, f.Salt, f.Status, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("index: inserting file %s: %w", f.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit create file: %w", err)
	}

	s.logger.Debug("file created",
		slog.String("id", f.ID),
		slog.String("status", f.Status),
	)

	return nil
}

// GetFile returns the file with the given id, or ErrNotFound.
func (s *Store) GetFile(ctx context.Context, id string) (*File, error) {
	row := s.db.QueryRowContext(ctx, fileSelectCols+`WHERE id = ?`, id)

	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: file %s: %w", id, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("index: get file %s: %w", id, err)
	}

	return f, nil
}

// ListFiles returns files with the given status ordered by creation time
// descending, plus the total count for that status (for pagination).
func (s *Store) ListFiles(ctx context.Context, status string, limit, offset int) ([]File, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE status = ?`, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: counting %s files: %w", status, err)
	}

	rows, err := s.db.QueryContext(ctx,
		fileSelectCols+`WHERE status = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("index: listing %s files: %w", status, err)
	}
	defer rows.Close()

	files, err := collectFiles(rows)
	if err != nil {
		return nil, 0, err
	}

	return files, total, nil
}

// SearchFiles runs a prefix-match full-text search over file names,
// restricted to the given status. The query is sanitized so the user input
// is always a single literal token with a trailing wildcard; embedded
// quotes cannot break out of the FTS string syntax.
func (s *Store) SearchFiles(ctx context.Context, query, status string) ([]File, error) {
	match := sanitizeMatch(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.name, f.size, f.type, f.iv, f.salt, f.status, f.created_at
		FROM files_fts
		JOIN files f ON f.rowid = files_fts.rowid
		WHERE files_fts MATCH ? AND f.status = ?
		ORDER BY f.created_at DESC, f.id`,
		match, status)
	if err != nil {
		return nil, fmt.Errorf("index: searching files: %w", err)
	}
	defer rows.Close()

	return collectFiles(rows)
}

// sanitizeMatch converts untrusted user input into a safe FTS5 MATCH
// expression: quotes are doubled, the whole value is wrapped in quotes, and
// a trailing * makes it a prefix query. The name is NFC-normalized to match
// the write-side normalization.
func sanitizeMatch(query string) string {
	q := strings.TrimSpace(norm.NFC.String(query))
	if q == "" {
		return ""
	}

	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"*`
}

// SetStatus updates a file's lifecycle status. Returns ErrNotFound when no
// file with the id exists.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE files SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("index: set status %s on %s: %w", status, id, err)
	}

	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("index: set status rows affected: %w", rowsErr)
	}

	if rows == 0 {
		return fmt.Errorf("index: set status on %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("file status changed", slog.String("id", id), slog.String("status", status))

	return nil
}

// DeleteFile removes a file row; its chunks cascade. Returns ErrNotFound
// when no file with the id exists.
func (s *Store) DeleteFile(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("index: delete file %s: %w", id, err)
	}

	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		return fmt.Errorf("index: delete file rows affected: %w", rowsErr)
	}

	if rows == 0 {
		return fmt.Errorf("index: delete file %s: %w", id, ErrNotFound)
	}

	return nil
}

// ListFileIDs returns the ids of all files with the given status.
func (s *Store) ListFileIDs(ctx context.Context, status string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM files WHERE status = ?`, status)
	if err != nil {
		return nil, fmt.Errorf("index: listing %s ids: %w", status, err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("index: scanning file id: %w", err)
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: iterating file ids: %w", err)
	}

	return ids, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helper.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFile scans a single row into a File.
func scanFile(row rowScanner) (*File, error) {
	var f File

	err := row.Scan(&f.ID, &f.Name, &f.Size, &f.Type, &f.IV, &f.Salt, &f.Status, &f.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &f, nil
}

// collectFiles drains rows into a slice of File.
func collectFiles(rows *sql.Rows) ([]File, error) {
	var files []File

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("index: scanning file row: %w", err)
		}

		files = append(files, *f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: iterating file rows: %w", err)
	}

	return files, nil
}
