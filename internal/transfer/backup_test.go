package transfer

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekodrive/nekodrive/internal/discord"
	"github.com/nekodrive/nekodrive/internal/index"
	"github.com/nekodrive/nekodrive/internal/testutil"
)

// newFileBackedEngine uses an on-disk index so Backup has a file to read.
func newFileBackedEngine(t *testing.T) (*Engine, *index.Store, *testutil.FakeStore) {
	t.Helper()

	idx, err := index.Open(filepath.Join(t.TempDir(), "neko.db"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	store := testutil.NewFakeStore()

	e := NewEngine(idx, store, slog.Default())
	e.sleepFunc = func(context.Context, time.Duration) error { return nil }

	return e, idx, store
}

func TestBackup_UploadsSnapshotAndPrunes(t *testing.T) {
	e, _, store := newFileBackedEngine(t)
	ctx := context.Background()

	store.Messages["backup"] = []discord.Message{
		{ID: "prior-snapshot", Content: backupMarker + " 2026-01-01 00:00:00 UTC"},
		{ID: "unrelated", Content: "hello"},
	}

	require.NoError(t, e.Backup(ctx))

	// Only our own marker-prefixed messages are pruned.
	assert.Contains(t, store.Deleted, "prior-snapshot")
	assert.NotContains(t, store.Deleted, "unrelated")

	require.Len(t, store.Snapshots, 1)
	snap := store.Snapshots[0]
	assert.Equal(t, "backup", snap.ChannelID)
	assert.Equal(t, "neko.db", snap.Filename)
	assert.True(t, strings.HasPrefix(snap.Content, backupMarker))
	assert.NotEmpty(t, snap.Data)
}

func TestBackup_Unconfigured(t *testing.T) {
	e, _, store := newFileBackedEngine(t)
	store.BackupChannel = ""

	err := e.Backup(context.Background())
	require.ErrorIs(t, err, ErrBackupUnconfigured)
}

func TestFinalize_TriggersBackup(t *testing.T) {
	e, _, store := newFileBackedEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 1)
	uploadChunk(t, e, "a", 0, "x")

	require.NoError(t, e.Finalize(ctx, "a", false))
	e.Wait()

	require.Len(t, store.Snapshots, 1)
}
