package transfer

import (
	"context"
	"log/slog"
	"time"

	"github.com/nekodrive/nekodrive/internal/discord"
	"github.com/nekodrive/nekodrive/internal/index"
)

// streamRefreshSkew is the stricter expiry policy for range streams: a URL
// with less than this much lifetime left is refreshed before use, so it
// cannot die mid-response.
const streamRefreshSkew = 5 * time.Minute

// ensureFresh returns a usable CDN URL for the chunk, refreshing when the
// stored one is expired (or within skew of expiring), or unconditionally
// when force is set. Refresh is attempted in order: bulk refresh endpoint,
// JIT lookup of the chunk's own message, JIT lookup via the backup channel.
// Refreshed URLs are persisted. Failures are logged, never fatal: the
// stored URL is returned as a last resort and the fetch below decides.
func (e *Engine) ensureFresh(ctx context.Context, c *index.Chunk, skew time.Duration, force bool) string {
	if !force && !discord.Expired(c.URL, skew) {
		return c.URL
	}

	if url := e.bulkRefresh(ctx, c, skew); url != "" {
		return url
	}

	channels := []string{c.ChannelID}
	if backup := e.store.BackupChannelID(); backup != "" && backup != c.ChannelID {
		channels = append(channels, backup)
	}

	for _, channelID := range channels {
		url, err := e.store.AttachmentURL(ctx, channelID, c.MessageID)
		if err != nil {
			e.logger.Warn("jit url lookup failed",
				slog.String("file_id", c.FileID),
				slog.Int("idx", c.Idx),
				slog.String("channel_id", channelID),
				slog.String("error", err.Error()),
			)

			continue
		}

		e.persistURL(ctx, c, url)

		return url
	}

	return c.URL
}

// bulkRefresh exchanges the chunk's URL through the refresh endpoint.
// Returns "" when the endpoint failed or did not hand back a fresher URL.
func (e *Engine) bulkRefresh(ctx context.Context, c *index.Chunk, skew time.Duration) string {
	if c.URL == "" {
		return ""
	}

	refreshed, err := e.store.RefreshURLs(ctx, []string{c.URL})
	if err != nil {
		e.logger.Warn("bulk url refresh failed",
			slog.String("file_id", c.FileID),
			slog.Int("idx", c.Idx),
			slog.String("error", err.Error()),
		)

		return ""
	}

	url := refreshed[0]
	if url == c.URL || discord.Expired(url, skew) {
		return ""
	}

	e.persistURL(ctx, c, url)

	return url
}

// persistURL writes a refreshed URL back to the chunk row and the in-memory
// copy. Best effort: a failed write only means the next reader refreshes
// again.
func (e *Engine) persistURL(ctx context.Context, c *index.Chunk, url string) {
	if err := e.index.UpdateChunkURL(ctx, c.FileID, c.Idx, url); err != nil {
		e.logger.Warn("persisting refreshed url failed",
			slog.String("file_id", c.FileID),
			slog.Int("idx", c.Idx),
			slog.String("error", err.Error()),
		)
	}

	c.URL = url
}
