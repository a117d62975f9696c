// Package index implements the durable metadata store for nekodrive: files,
// their ordered chunk-to-message mappings, full-text search over names, and
// the pending/active/trashed lifecycle. It is an embedded SQLite database in
// WAL mode with a single writer; all public operations run as one
// transaction each.
package index

import "errors"

// File status values. Transitions are enforced by the upload engine:
// pending -> active -> trashed -> gone, with pending -> gone on abort and
// trashed -> active on restore.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusTrashed = "trashed"
)

// Sentinel errors. Use errors.Is to check.
var (
	// ErrNotFound is returned when a file or chunk does not exist.
	ErrNotFound = errors.New("index: not found")

	// ErrConflict is returned when creating a file whose id is already
	// taken by an active file.
	ErrConflict = errors.New("index: id already active")
)

// File is a logical user object composed of an ordered sequence of chunks.
// The iv and salt fields are opaque hex strings chosen by the client; the
// server never interprets them.
type File struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Type      string `json:"type,omitempty"`
	IV        string `json:"iv,omitempty"`
	Salt      string `json:"salt,omitempty"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"createdAt"`
}

// Chunk is one stored blob: an attachment message in a Discord channel.
// URL is the last-known CDN URL and may be expired.
type Chunk struct {
	FileID    string `json:"fileId"`
	Idx       int    `json:"idx"`
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
	Size      int64  `json:"size"`
	URL       string `json:"url"`
}

// Stats summarizes the index for the system endpoints.
type Stats struct {
	ActiveFiles  int64 `json:"activeFiles"`
	TrashedFiles int64 `json:"trashedFiles"`
	PendingFiles int64 `json:"pendingFiles"`
	Chunks       int64 `json:"chunks"`
	StoredBytes  int64 `json:"storedBytes"`
	IndexBytes   int64 `json:"indexBytes"`
}
