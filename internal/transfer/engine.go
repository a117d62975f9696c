// Package transfer is the storage engine: resumable chunk uploads, windowed
// full-file downloads, single-chunk range streams, URL refresh, lifecycle
// deletes, and index snapshots. It coordinates the metadata index and the
// object-store adapter; it performs no HTTP handling of its own.
package transfer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/nekodrive/nekodrive/internal/discord"
	"github.com/nekodrive/nekodrive/internal/index"
)

// Sentinel errors mapped to HTTP statuses by the server layer.
var (
	// ErrUploadAborted means the pending upload session vanished, usually
	// because the client aborted while a chunk was in flight.
	ErrUploadAborted = errors.New("transfer: upload session aborted")

	// ErrInvalidChunkIndex means the chunk position could not be resolved
	// from the request.
	ErrInvalidChunkIndex = errors.New("transfer: cannot resolve chunk index")

	// ErrRangeNotSatisfiable means no chunk contains the requested start
	// offset.
	ErrRangeNotSatisfiable = errors.New("transfer: range not satisfiable")

	// ErrBackupUnconfigured means no backup channel is set.
	ErrBackupUnconfigured = errors.New("transfer: backup channel not configured")
)

// Index is the slice of the metadata store the engine mutates and reads.
// Implemented by *index.Store.
type Index interface {
	CreateFile(ctx context.Context, f index.File) error
	GetFile(ctx context.Context, id string) (*index.File, error)
	SetStatus(ctx context.Context, id, status string) error
	DeleteFile(ctx context.Context, id string) error
	ListFileIDs(ctx context.Context, status string) ([]string, error)

	PutChunk(ctx context.Context, c index.Chunk) error
	GetChunk(ctx context.Context, fileID string, idx int) (*index.Chunk, error)
	GetChunks(ctx context.Context, fileID string) ([]index.Chunk, error)
	ChunkIndexes(ctx context.Context, fileID string) ([]int, error)
	DeleteChunk(ctx context.Context, fileID string, idx int) error
	UpdateChunkURL(ctx context.Context, fileID string, idx int, url string) error
	MessageIDs(ctx context.Context, fileIDs ...string) ([]string, error)

	Vacuum(ctx context.Context) error
	Checkpoint(ctx context.Context) error
	Path() string
}

// ObjectStore is the external-store surface the engine drives. Implemented
// by *discord.Adapter.
type ObjectStore interface {
	ChannelID() string
	BackupChannelID() string
	Upload(ctx context.Context, blob io.Reader, filename string) (*discord.UploadResult, error)
	SendSnapshot(ctx context.Context, channelID, content, filename string, blob io.Reader) (*discord.UploadResult, error)
	DeleteOne(ctx context.Context, channelID, messageID string) error
	BulkDelete(ctx context.Context, messageIDs []string) error
	RefreshURLs(ctx context.Context, urls []string) ([]string, error)
	AttachmentURL(ctx context.Context, channelID, messageID string) (string, error)
	ListMessages(ctx context.Context, channelID string, limit int) ([]discord.Message, error)
	Fetch(ctx context.Context, url, rangeSpec string) (*http.Response, error)
}

// backgroundTimeout bounds fire-and-forget cleanup and backup tasks. Bulk
// deletion of a large trash can runs for a while under the fallback pacing.
const backgroundTimeout = 5 * time.Minute

// Engine ties the index and the object store together. Safe for concurrent
// use; it keeps no per-request state.
type Engine struct {
	index  Index
	store  ObjectStore
	logger *slog.Logger

	// sleepFunc waits between retries. Swapped in tests so backoff does
	// not slow them.
	sleepFunc func(ctx context.Context, d time.Duration) error

	bg sync.WaitGroup
}

// NewEngine creates an Engine. A nil logger falls back to slog.Default().
func NewEngine(idx Index, store ObjectStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		index:     idx,
		store:     store,
		logger:    logger,
		sleepFunc: timeSleep,
	}
}

// spawn runs fn as a fire-and-forget background task with its own deadline.
// Failures are logged and never surfaced to the request that scheduled them.
func (e *Engine) spawn(name string, fn func(ctx context.Context) error) {
	e.bg.Add(1)

	go func() {
		defer e.bg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			e.logger.Warn("background task failed",
				slog.String("task", name),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// Wait blocks until all scheduled background tasks finish. Used on shutdown
// and by tests that assert on cleanup side effects.
func (e *Engine) Wait() {
	e.bg.Wait()
}

// timeSleep waits for d or until ctx is done, whichever comes first. It is
// the default sleepFunc for Engine.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
