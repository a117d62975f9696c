package transfer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Snapshot messages in the backup channel carry this content prefix so the
// circular pruning only ever touches our own messages.
const (
	backupMarker    = "[nekodrive-backup]"
	backupScanLimit = 10
)

// Backup snapshots the index into the backup channel. The WAL is
// checkpointed first so the on-disk file is self-contained, prior snapshots
// among the channel's recent messages are pruned best-effort, and the file
// is uploaded with the marker prefix and a timestamp. The channel thus holds
// only the newest snapshot on a clean run.
func (e *Engine) Backup(ctx context.Context) error {
	channelID := e.store.BackupChannelID()
	if channelID == "" {
		return ErrBackupUnconfigured
	}

	if err := e.index.Checkpoint(ctx); err != nil {
		return err
	}

	data, err := os.ReadFile(e.index.Path())
	if err != nil {
		return fmt.Errorf("transfer: reading index file: %w", err)
	}

	e.pruneSnapshots(ctx, channelID)

	content := fmt.Sprintf("%s %s", backupMarker, time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))

	res, err := e.store.SendSnapshot(ctx, channelID, content, filepath.Base(e.index.Path()), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("transfer: uploading index snapshot: %w", err)
	}

	e.logger.Info("index snapshot uploaded",
		slog.String("message_id", res.MessageID),
		slog.Int64("size", res.Size),
	)

	return nil
}

// pruneSnapshots deletes marker-prefixed messages among the most recent ones
// in the backup channel. Best effort: a failed list or delete only means an
// extra snapshot lingers until the next run.
func (e *Engine) pruneSnapshots(ctx context.Context, channelID string) {
	msgs, err := e.store.ListMessages(ctx, channelID, backupScanLimit)
	if err != nil {
		e.logger.Warn("listing prior snapshots failed", slog.String("error", err.Error()))
		return
	}

	for _, m := range msgs {
		if !strings.HasPrefix(m.Content, backupMarker) {
			continue
		}

		if err := e.store.DeleteOne(ctx, channelID, m.ID); err != nil {
			e.logger.Warn("pruning prior snapshot failed",
				slog.String("message_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
