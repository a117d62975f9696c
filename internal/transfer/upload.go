package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/nekodrive/nekodrive/internal/index"
)

// InitUpload creates (or replaces) a pending upload session. An id already
// taken by an active or trashed file fails with index.ErrConflict. Replacing
// a pending session may leave orphan records in the external store; those
// are swept by Abort or PurgePending, never here.
func (e *Engine) InitUpload(ctx context.Context, meta index.File) error {
	meta.Status = index.StatusPending
	if meta.CreatedAt == 0 {
		meta.CreatedAt = time.Now().Unix()
	}

	if err := e.index.CreateFile(ctx, meta); err != nil {
		return err
	}

	e.logger.Info("upload session started",
		slog.String("id", meta.ID),
		slog.String("name", meta.Name),
		slog.Int64("size", meta.Size),
	)

	return nil
}

// UploadChunk stores one chunk of a pending file and returns the external
// message id. Re-uploading an existing (id, idx) is an idempotent overwrite:
// the prior external record is scheduled for deletion and its row removed
// before the new upload starts. The pending row is rechecked after the
// external upload; if the session was aborted mid-flight the fresh external
// record is scheduled for deletion and the call fails with ErrUploadAborted,
// so a concurrent abort never leaks a stored blob.
func (e *Engine) UploadChunk(ctx context.Context, fileID string, idx int, body io.Reader) (string, error) {
	if err := e.requirePending(ctx, fileID); err != nil {
		return "", err
	}

	if existing, err := e.index.GetChunk(ctx, fileID, idx); err == nil {
		e.scheduleDelete("orphaned chunk overwrite", existing.ChannelID, existing.MessageID)

		if err := e.index.DeleteChunk(ctx, fileID, idx); err != nil {
			return "", err
		}
	} else if !errors.Is(err, index.ErrNotFound) {
		return "", err
	}

	res, err := e.store.Upload(ctx, body, chunkFilename(fileID, idx))
	if err != nil {
		return "", fmt.Errorf("transfer: uploading chunk %s/%d: %w", fileID, idx, err)
	}

	// The session may have been aborted while the upload was in flight.
	if err := e.requirePending(ctx, fileID); err != nil {
		e.scheduleDelete("aborted mid-upload", e.store.ChannelID(), res.MessageID)
		return "", err
	}

	chunk := index.Chunk{
		FileID:    fileID,
		Idx:       idx,
		MessageID: res.MessageID,
		ChannelID: e.store.ChannelID(),
		Size:      res.Size,
		URL:       res.URL,
	}

	if err := e.index.PutChunk(ctx, chunk); err != nil {
		e.scheduleDelete("chunk insert failed", chunk.ChannelID, chunk.MessageID)
		return "", err
	}

	return res.MessageID, nil
}

// requirePending fails with ErrUploadAborted unless a pending file with the
// id exists.
func (e *Engine) requirePending(ctx context.Context, fileID string) error {
	f, err := e.index.GetFile(ctx, fileID)
	if errors.Is(err, index.ErrNotFound) {
		return fmt.Errorf("transfer: file %s: %w", fileID, ErrUploadAborted)
	}

	if err != nil {
		return err
	}

	if f.Status != index.StatusPending {
		return fmt.Errorf("transfer: file %s is %s: %w", fileID, f.Status, ErrUploadAborted)
	}

	return nil
}

// chunkFilename names the external attachment for a chunk.
func chunkFilename(fileID string, idx int) string {
	return fmt.Sprintf("%s_%d.bin", fileID, idx)
}

// Finalize promotes a pending file to active, compacts the index, and
// schedules a snapshot backup unless skipBackup is set or no backup channel
// is configured.
func (e *Engine) Finalize(ctx context.Context, fileID string, skipBackup bool) error {
	if err := e.index.SetStatus(ctx, fileID, index.StatusActive); err != nil {
		return err
	}

	if err := e.index.Vacuum(ctx); err != nil {
		e.logger.Warn("post-finalize vacuum failed", slog.String("error", err.Error()))
	}

	e.logger.Info("file finalized", slog.String("id", fileID))

	if !skipBackup && e.store.BackupChannelID() != "" {
		e.spawn("finalize backup", e.Backup)
	}

	return nil
}

// Abort removes a pending upload session and schedules bulk deletion of any
// chunks already stored externally. Aborting a session that does not exist,
// or a file that is no longer pending, is a no-op: abort is safe to repeat.
func (e *Engine) Abort(ctx context.Context, fileID string) error {
	f, err := e.index.GetFile(ctx, fileID)
	if errors.Is(err, index.ErrNotFound) {
		return nil
	}

	if err != nil {
		return err
	}

	if f.Status != index.StatusPending {
		return nil
	}

	messageIDs, err := e.index.MessageIDs(ctx, fileID)
	if err != nil {
		return err
	}

	if err := e.index.DeleteFile(ctx, fileID); err != nil && !errors.Is(err, index.ErrNotFound) {
		return err
	}

	e.scheduleBulkDelete("abort cleanup", messageIDs)

	e.logger.Info("upload session aborted",
		slog.String("id", fileID),
		slog.Int("orphans", len(messageIDs)),
	)

	return nil
}

// PurgePending removes every pending upload session and schedules bulk
// deletion of their external records. Returns the number of sessions purged.
func (e *Engine) PurgePending(ctx context.Context) (int, error) {
	ids, err := e.index.ListFileIDs(ctx, index.StatusPending)
	if err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	messageIDs, err := e.index.MessageIDs(ctx, ids...)
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := e.index.DeleteFile(ctx, id); err != nil && !errors.Is(err, index.ErrNotFound) {
			return 0, err
		}
	}

	e.scheduleBulkDelete("pending purge", messageIDs)

	e.logger.Info("pending uploads purged",
		slog.Int("files", len(ids)),
		slog.Int("orphans", len(messageIDs)),
	)

	return len(ids), nil
}

// StoredChunkIndexes returns the sorted chunk indexes already stored for a
// file, so a client can resume at the first gap.
func (e *Engine) StoredChunkIndexes(ctx context.Context, fileID string) ([]int, error) {
	if _, err := e.index.GetFile(ctx, fileID); err != nil {
		return nil, err
	}

	return e.index.ChunkIndexes(ctx, fileID)
}

// ResolveChunkIndex derives the 0-based chunk position from request headers.
// chunkNumber is the raw X-Chunk-Number value (1-based) and wins when
// present. Otherwise a byte Content-Range start offset is divided by the
// size of chunk 0; a non-zero offset with no chunk 0 on record cannot be
// anchored and is rejected rather than guessed at. With neither header the
// index is 0.
func (e *Engine) ResolveChunkIndex(ctx context.Context, fileID, chunkNumber, contentRange string) (int, error) {
	if chunkNumber != "" {
		n, err := strconv.Atoi(chunkNumber)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("transfer: X-Chunk-Number %q: %w", chunkNumber, ErrInvalidChunkIndex)
		}

		return n - 1, nil
	}

	if contentRange != "" {
		start, err := parseContentRangeStart(contentRange)
		if err != nil {
			return 0, err
		}

		if start == 0 {
			return 0, nil
		}

		anchor, err := e.index.GetChunk(ctx, fileID, 0)
		if errors.Is(err, index.ErrNotFound) {
			return 0, fmt.Errorf("transfer: Content-Range with start %d but chunk 0 not stored: %w",
				start, ErrInvalidChunkIndex)
		}

		if err != nil {
			return 0, err
		}

		return int(start / anchor.Size), nil
	}

	return 0, nil
}

// parseContentRangeStart extracts the start offset from a
// "bytes start-end/total" header value.
func parseContentRangeStart(value string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, fmt.Errorf("transfer: Content-Range %q: %w", value, ErrInvalidChunkIndex)
	}

	startStr, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, fmt.Errorf("transfer: Content-Range %q: %w", value, ErrInvalidChunkIndex)
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, fmt.Errorf("transfer: Content-Range %q: %w", value, ErrInvalidChunkIndex)
	}

	return start, nil
}

// scheduleDelete queues best-effort deletion of one external record.
func (e *Engine) scheduleDelete(reason, channelID, messageID string) {
	e.spawn("delete "+reason, func(ctx context.Context) error {
		return e.store.DeleteOne(ctx, channelID, messageID)
	})
}

// scheduleBulkDelete queues best-effort bulk deletion of external records.
func (e *Engine) scheduleBulkDelete(reason string, messageIDs []string) {
	if len(messageIDs) == 0 {
		return
	}

	e.spawn("bulk delete "+reason, func(ctx context.Context) error {
		return e.store.BulkDelete(ctx, messageIDs)
	})
}
