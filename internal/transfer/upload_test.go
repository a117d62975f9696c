package transfer

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekodrive/nekodrive/internal/index"
)

func initFile(t *testing.T, e *Engine, id string, size int64) {
	t.Helper()

	require.NoError(t, e.InitUpload(context.Background(), index.File{
		ID:   id,
		Name: id + ".bin",
		Size: size,
	}))
}

func uploadChunk(t *testing.T, e *Engine, id string, idx int, body string) string {
	t.Helper()

	messageID, err := e.UploadChunk(context.Background(), id, idx, strings.NewReader(body))
	require.NoError(t, err)

	return messageID
}

func TestUploadRoundTrip(t *testing.T) {
	e, idx, _ := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 14)
	uploadChunk(t, e, "a", 0, "Hello Jenkins!")
	require.NoError(t, e.Finalize(ctx, "a", true))

	f, err := idx.GetFile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, index.StatusActive, f.Status)

	chunks, err := idx.GetChunks(ctx, "a")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, int64(14), chunks[0].Size)

	body, err := e.FetchChunk(ctx, &chunks[0])
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "Hello Jenkins!", string(data))
}

func TestInitUpload_ConflictOnActive(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 1)
	require.NoError(t, e.Finalize(ctx, "a", true))

	err := e.InitUpload(ctx, index.File{ID: "a", Name: "again.bin", Size: 1})
	require.ErrorIs(t, err, index.ErrConflict)
}

func TestUploadChunk_NoPendingSession(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.UploadChunk(context.Background(), "ghost", 0, strings.NewReader("x"))
	require.ErrorIs(t, err, ErrUploadAborted)
}

func TestUploadChunk_OverwriteLeavesOneRecord(t *testing.T) {
	e, idx, store := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 5)

	first := uploadChunk(t, e, "a", 0, "one")
	second := uploadChunk(t, e, "a", 0, "two!!")

	chunks, err := idx.GetChunks(ctx, "a")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, second, chunks[0].MessageID)
	assert.Equal(t, int64(5), chunks[0].Size)

	// The orphaned first record is scheduled for deletion.
	e.Wait()
	assert.Contains(t, store.Deleted, first)
}

func TestUploadChunk_AbortRace(t *testing.T) {
	e, idx, store := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 5)

	// The session vanishes while the external upload is in flight.
	store.UploadHook = func() {
		require.NoError(t, e.Abort(ctx, "a"))
	}

	_, err := e.UploadChunk(ctx, "a", 0, strings.NewReader("bytes"))
	require.ErrorIs(t, err, ErrUploadAborted)

	_, err = idx.GetFile(ctx, "a")
	require.ErrorIs(t, err, index.ErrNotFound)

	// The just-created external record must not leak.
	e.Wait()
	assert.Contains(t, store.Deleted, "msg-1")
}

func TestAbort_SchedulesBulkDelete(t *testing.T) {
	e, idx, store := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 10)
	m0 := uploadChunk(t, e, "a", 0, "first")
	m1 := uploadChunk(t, e, "a", 1, "second")

	require.NoError(t, e.Abort(ctx, "a"))

	_, err := idx.GetFile(ctx, "a")
	require.ErrorIs(t, err, index.ErrNotFound)

	e.Wait()
	require.Len(t, store.BulkCalls, 1)
	assert.ElementsMatch(t, []string{m0, m1}, store.BulkCalls[0])

	// Abort is idempotent.
	require.NoError(t, e.Abort(ctx, "a"))
}

func TestAbort_IgnoresActiveFiles(t *testing.T) {
	e, idx, _ := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 3)
	uploadChunk(t, e, "a", 0, "abc")
	require.NoError(t, e.Finalize(ctx, "a", true))

	require.NoError(t, e.Abort(ctx, "a"))

	f, err := idx.GetFile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, index.StatusActive, f.Status)
}

func TestPurgePending(t *testing.T) {
	e, idx, store := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 3)
	m0 := uploadChunk(t, e, "a", 0, "abc")
	initFile(t, e, "b", 2)
	m1 := uploadChunk(t, e, "b", 0, "de")

	initFile(t, e, "done", 1)
	uploadChunk(t, e, "done", 0, "x")
	require.NoError(t, e.Finalize(ctx, "done", true))

	n, err := e.PurgePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = idx.GetFile(ctx, "a")
	require.ErrorIs(t, err, index.ErrNotFound)
	_, err = idx.GetFile(ctx, "b")
	require.ErrorIs(t, err, index.ErrNotFound)

	// The finalized file is untouched.
	_, err = idx.GetFile(ctx, "done")
	require.NoError(t, err)

	e.Wait()
	require.Len(t, store.BulkCalls, 1)
	assert.ElementsMatch(t, []string{m0, m1}, store.BulkCalls[0])
}

func TestStoredChunkIndexes(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 10)
	uploadChunk(t, e, "a", 2, "third")
	uploadChunk(t, e, "a", 0, "first")

	indexes, err := e.StoredChunkIndexes(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, indexes)

	_, err = e.StoredChunkIndexes(ctx, "ghost")
	require.ErrorIs(t, err, index.ErrNotFound)
}

func TestResolveChunkIndex(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 24)
	uploadChunk(t, e, "a", 0, "12345678") // anchors Content-Range at 8 bytes

	tests := []struct {
		name         string
		chunkNumber  string
		contentRange string
		want         int
		wantErr      bool
	}{
		{name: "header one-based", chunkNumber: "3", want: 2},
		{name: "header wins over range", chunkNumber: "1", contentRange: "bytes 16-23/24", want: 0},
		{name: "header zero rejected", chunkNumber: "0", wantErr: true},
		{name: "header garbage rejected", chunkNumber: "abc", wantErr: true},
		{name: "range start zero", contentRange: "bytes 0-7/24", want: 0},
		{name: "range divided by anchor", contentRange: "bytes 16-23/24", want: 2},
		{name: "range malformed", contentRange: "16-23", wantErr: true},
		{name: "no headers defaults to zero", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.ResolveChunkIndex(ctx, "a", tt.chunkNumber, tt.contentRange)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidChunkIndex)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveChunkIndex_NoAnchorChunk(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 24)

	// A non-zero offset with no chunk 0 stored cannot be anchored.
	_, err := e.ResolveChunkIndex(ctx, "a", "", "bytes 16-23/24")
	require.ErrorIs(t, err, ErrInvalidChunkIndex)

	// Offset zero needs no anchor.
	got, err := e.ResolveChunkIndex(ctx, "a", "", "bytes 0-7/24")
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestFinalize_SchedulesBackup(t *testing.T) {
	e, _, store := newTestEngine(t)
	ctx := context.Background()

	initFile(t, e, "a", 1)
	uploadChunk(t, e, "a", 0, "x")

	// skipBackup suppresses the snapshot.
	require.NoError(t, e.Finalize(ctx, "a", true))
	e.Wait()
	assert.Empty(t, store.Snapshots)
}
