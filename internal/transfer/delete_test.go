package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekodrive/nekodrive/internal/index"
)

func TestDeleteFile_TwoPhase(t *testing.T) {
	e, idx, store := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 5)
	messageID := uploadChunk(t, e, "a", 0, "bytes")
	require.NoError(t, e.Finalize(ctx, "a", true))

	// First delete: soft, to the trash.
	outcome, err := e.DeleteFile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, DeletedToTrash, outcome)

	f, err := idx.GetFile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, index.StatusTrashed, f.Status)

	// Second delete: permanent, with external cleanup.
	outcome, err = e.DeleteFile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, DeletedPermanently, outcome)

	_, err = idx.GetFile(ctx, "a")
	require.ErrorIs(t, err, index.ErrNotFound)

	e.Wait()
	require.Len(t, store.BulkCalls, 1)
	assert.Equal(t, []string{messageID}, store.BulkCalls[0])

	// Third delete: nothing left.
	_, err = e.DeleteFile(ctx, "a")
	require.ErrorIs(t, err, index.ErrNotFound)
}

func TestRestoreFile(t *testing.T) {
	e, idx, _ := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 1)
	uploadChunk(t, e, "a", 0, "x")
	require.NoError(t, e.Finalize(ctx, "a", true))

	_, err := e.DeleteFile(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, e.RestoreFile(ctx, "a"))

	f, err := idx.GetFile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, index.StatusActive, f.Status)

	// Restoring an active file is a no-op.
	require.NoError(t, e.RestoreFile(ctx, "a"))

	err = e.RestoreFile(ctx, "ghost")
	require.ErrorIs(t, err, index.ErrNotFound)
}

func TestEmptyTrash(t *testing.T) {
	e, idx, store := newTestEngine(t)
	ctx := context.Background()

	mkTrashed := func(id, body string) string {
		initFile(t, e, id, int64(len(body)))
		messageID := uploadChunk(t, e, id, 0, body)
		require.NoError(t, e.Finalize(ctx, id, true))

		_, err := e.DeleteFile(ctx, id)
		require.NoError(t, err)

		return messageID
	}

	m0 := mkTrashed("a", "aaa")
	m1 := mkTrashed("b", "bbb")

	initFile(t, e, "keep", 1)
	uploadChunk(t, e, "keep", 0, "x")
	require.NoError(t, e.Finalize(ctx, "keep", true))

	n, err := e.EmptyTrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = idx.GetFile(ctx, "a")
	require.ErrorIs(t, err, index.ErrNotFound)

	f, err := idx.GetFile(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, index.StatusActive, f.Status)

	e.Wait()
	require.Len(t, store.BulkCalls, 1)
	assert.ElementsMatch(t, []string{m0, m1}, store.BulkCalls[0])

	// Empty trash on an empty trash is fine.
	n, err = e.EmptyTrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
