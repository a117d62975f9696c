package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nekodrive/nekodrive/internal/index"
)

// Outcomes of DeleteFile's two-phase protocol.
const (
	DeletedToTrash     = "trashed"
	DeletedPermanently = "deleted"
)

// DeleteFile applies the two-phase delete: an active file is soft-deleted to
// the trash; a trashed (or still-pending) file is removed for good, with its
// external records scheduled for bulk deletion. Returns which phase ran.
func (e *Engine) DeleteFile(ctx context.Context, fileID string) (string, error) {
	f, err := e.index.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}

	if f.Status == index.StatusActive {
		if err := e.index.SetStatus(ctx, fileID, index.StatusTrashed); err != nil {
			return "", err
		}

		e.logger.Info("file trashed", slog.String("id", fileID))

		return DeletedToTrash, nil
	}

	messageIDs, err := e.index.MessageIDs(ctx, fileID)
	if err != nil {
		return "", err
	}

	if err := e.index.DeleteFile(ctx, fileID); err != nil {
		return "", err
	}

	e.scheduleBulkDelete("file delete", messageIDs)

	e.logger.Info("file deleted",
		slog.String("id", fileID),
		slog.Int("chunks", len(messageIDs)),
	)

	return DeletedPermanently, nil
}

// RestoreFile brings a trashed file back to active. Restoring a file that is
// already active is a no-op.
func (e *Engine) RestoreFile(ctx context.Context, fileID string) error {
	f, err := e.index.GetFile(ctx, fileID)
	if err != nil {
		return err
	}

	switch f.Status {
	case index.StatusActive:
		return nil
	case index.StatusTrashed:
		return e.index.SetStatus(ctx, fileID, index.StatusActive)
	default:
		return fmt.Errorf("transfer: file %s is still pending: %w", fileID, index.ErrNotFound)
	}
}

// EmptyTrash permanently removes every trashed file and schedules bulk
// deletion of their external records. Returns the number of files removed.
func (e *Engine) EmptyTrash(ctx context.Context) (int, error) {
	ids, err := e.index.ListFileIDs(ctx, index.StatusTrashed)
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

	e.scheduleBulkDelete("empty trash", messageIDs)

	e.logger.Info("trash emptied",
		slog.Int("files", len(ids)),
		slog.Int("chunks", len(messageIDs)),
	)

	return len(ids), nil
}
