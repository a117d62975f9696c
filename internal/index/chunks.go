package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// PutChunk stores a chunk row, overwriting any prior chunk at the same
// (fileID, idx). The delete+insert runs in one transaction so at most one
// record ever exists for the pair.
func (s *Store) PutChunk(ctx context.Context, c Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin put chunk: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunks WHERE file_id = ? AND idx = ?`, c.FileID, c.Idx); err != nil {
		return fmt.Errorf("index: replacing chunk %s/%d: %w", c.FileID, c.Idx, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (file_id, idx, message_id, channel_id, size, url)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.FileID, c.Idx, c.MessageID, c.ChannelID, c.Size, c.URL); err != nil {
		return fmt.Errorf("index: inserting chunk %s/%d: %w", c.FileID, c.Idx, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit put chunk: %w", err)
	}

	s.logger.Debug("chunk stored",
		slog.String("file_id", c.FileID),
		slog.Int("idx", c.Idx),
		slog.Int64("size", c.Size),
	)

	return nil
}

// GetChunk returns the chunk at (fileID, idx), or ErrNotFound.
func (s *Store) GetChunk(ctx context.Context, fileID string, idx int) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT file_id, idx, message_id, channel_id, size, url
		 FROM chunks WHERE file_id = ? AND idx = ?`, fileID, idx)

	var c Chunk

	err := row.Scan(&c.FileID, &c.Idx, &c.MessageID, &c.ChannelID, &c.Size, &c.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: chunk %s/%d: %w", fileID, idx, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("index: get chunk %s/%d: %w", fileID, idx, err)
	}

	return &c, nil
}

// GetChunks returns all chunks of a file ordered by idx.
func (s *Store) GetChunks(ctx context.Context, fileID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_id, idx, message_id, channel_id, size, url
		 FROM chunks WHERE file_id = ? ORDER BY idx`, fileID)
	if err != nil {
		return nil, fmt.Errorf("index: listing chunks of %s: %w", fileID, err)
	}
	defer rows.Close()

	var chunks []Chunk

	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.FileID, &c.Idx, &c.MessageID, &c.ChannelID, &c.Size, &c.URL); err != nil {
			return nil, fmt.Errorf("index: scanning chunk row: %w", err)
		}

		chunks = append(chunks, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: iterating chunk rows: %w", err)
	}

	return chunks, nil
}

// ChunkIndexes returns the sorted list of chunk indexes already stored for
// a file. Clients use this to resume an interrupted upload.
func (s *Store) ChunkIndexes(ctx context.Context, fileID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx FROM chunks WHERE file_id = ? ORDER BY idx`, fileID)
	if err != nil {
		return nil, fmt.Errorf("index: listing chunk indexes of %s: %w", fileID, err)
	}
	defer rows.Close()

	indexes := []int{}

	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("index: scanning chunk index: %w", err)
		}

		indexes = append(indexes, idx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: iterating chunk indexes: %w", err)
	}

	return indexes, nil
}

// DeleteChunk removes the chunk at (fileID, idx). Missing rows are not an
// error: the overwrite path calls this unconditionally.
func (s *Store) DeleteChunk(ctx context.Context, fileID string, idx int) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM chunks WHERE file_id = ? AND idx = ?`, fileID, idx); err != nil {
		return fmt.Errorf("index: delete chunk %s/%d: %w", fileID, idx, err)
	}

	return nil
}

// UpdateChunkURL persists a refreshed CDN URL. A narrow single-column
// update: safe under concurrent readers, which see either the old or the
// new URL (both are valid refresh starting points).
func (s *Store) UpdateChunkURL(ctx context.Context, fileID string, idx int, url string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET url = ? WHERE file_id = ? AND idx = ?`, url, fileID, idx); err != nil {
		return fmt.Errorf("index: update chunk url %s/%d: %w", fileID, idx, err)
	}

	return nil
}

// MessageIDs returns the external message ids of all chunks belonging to
// the given file ids. Used to schedule bulk deletion before the rows go.
func (s *Store) MessageIDs(ctx context.Context, fileIDs ...string) ([]string, error) {
	var ids []string

	for _, fileID := range fileIDs {
		rows, err := s.db.QueryContext(ctx,
			`SELECT message_id FROM chunks WHERE file_id = ?`, fileID)
		if err != nil {
			return nil, fmt.Errorf("index: listing message ids of %s: %w", fileID, err)
		}

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("index: scanning message id: %w", err)
			}

			ids = append(ids, id)
		}

		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("index: iterating message ids: %w", err)
		}

		rows.Close()
	}

	return ids, nil
}
