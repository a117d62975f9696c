package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"
)

// API limits and pacing. Bulk message deletion caps at 100 ids per call and
// refuses messages older than 14 days; URL refresh caps at 50 per call.
const (
	bulkDeleteBatch    = 100
	refreshBatch       = 50
	fallbackDeleteConc = 5
	fallbackDeletePace = 250 * time.Millisecond
)

// refreshEndpoint returns fresh CDN URLs for expired attachment URLs.
// Not covered by discordgo's typed API, so the adapter calls it raw.
var refreshEndpoint = discordgo.EndpointAPI + "attachments/refresh-urls"

// Adapter talks to the Discord REST API and CDN. One channel (the primary)
// receives all chunk uploads; an optional backup channel holds index
// snapshots and doubles as a URL-refresh fallback.
type Adapter struct {
	session         *discordgo.Session
	cdn             *http.Client
	channelID       string
	backupChannelID string
	logger          *slog.Logger
}

// UploadResult describes a stored attachment.
type UploadResult struct {
	MessageID string
	URL       string
	Size      int64
}

// Message is a thin view of a channel message, enough for the backup
// protocol to recognize and prune prior snapshots.
type Message struct {
	ID      string
	Content string
}

// New creates an Adapter authenticated as a bot. No gateway connection is
// opened; all traffic is plain REST.
func New(botToken, channelID, backupChannelID string, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord: creating session: %w", err)
	}

	// discordgo's default client caps the whole exchange at 20 s, which an
	// 8 MiB attachment upload can exceed on a slow link. Every call carries
	// a context, so the deadline lives there instead.
	session.Client.Timeout = 0

	return &Adapter{
		session:         session,
		cdn:             &http.Client{},
		channelID:       channelID,
		backupChannelID: backupChannelID,
		logger:          logger,
	}, nil
}

// ChannelID returns the primary channel id.
func (a *Adapter) ChannelID() string {
	return a.channelID
}

// BackupChannelID returns the backup channel id, or "" when not configured.
func (a *Adapter) BackupChannelID() string {
	return a.backupChannelID
}

// Upload sends blob as an attachment message to the primary channel and
// returns the stored message id, CDN URL, and size.
func (a *Adapter) Upload(ctx context.Context, blob io.Reader, filename string) (*UploadResult, error) {
	return a.send(ctx, a.channelID, "", blob, filename)
}

// SendSnapshot uploads a file to the given channel with message content,
// used by the backup protocol to mark snapshots.
func (a *Adapter) SendSnapshot(ctx context.Context, channelID, content, filename string, blob io.Reader) (*UploadResult, error) {
	return a.send(ctx, channelID, content, blob, filename)
}

func (a *Adapter) send(ctx context.Context, channelID, content string, blob io.Reader, filename string) (*UploadResult, error) {
	msg, err := a.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Files: []*discordgo.File{{
			Name:        filename,
			ContentType: "application/octet-stream",
			Reader:      blob,
		}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapREST(err)
	}

	if len(msg.Attachments) != 1 {
		return nil, fmt.Errorf("discord: message %s has %d attachments, want 1", msg.ID, len(msg.Attachments))
	}

	att := msg.Attachments[0]

	a.logger.Debug("attachment uploaded",
		slog.String("channel_id", channelID),
		slog.String("message_id", msg.ID),
		slog.Int("size", att.Size),
	)

	return &UploadResult{
		MessageID: msg.ID,
		URL:       att.URL,
		Size:      int64(att.Size),
	}, nil
}

// DeleteOne deletes a single message. A message that is already gone
// counts as success: cleanup is best effort.
func (a *Adapter) DeleteOne(ctx context.Context, channelID, messageID string) error {
	err := wrapREST(a.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
	if err != nil && !IsMissing(err) {
		return err
	}

	return nil
}

// BulkDelete removes the given messages from the primary channel in
// batches of 100. A batch the bulk API rejects (typically because some
// messages are older than the 14-day bulk cutoff) falls back to single
// deletes with bounded concurrency and a pause between waves, to stay
// under the rate limit.
func (a *Adapter) BulkDelete(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	if len(messageIDs) == 1 {
		return a.DeleteOne(ctx, a.channelID, messageIDs[0])
	}

	for start := 0; start < len(messageIDs); start += bulkDeleteBatch {
		end := min(start+bulkDeleteBatch, len(messageIDs))
		batch := messageIDs[start:end]

		err := wrapREST(a.session.ChannelMessagesBulkDelete(a.channelID, batch, discordgo.WithContext(ctx)))
		if err == nil {
			continue
		}

		a.logger.Warn("bulk delete rejected, falling back to single deletes",
			slog.Int("batch_size", len(batch)),
			slog.String("error", err.Error()),
		)

		if err := a.deleteIndividually(ctx, batch); err != nil {
			return err
		}
	}

	return nil
}

// deleteIndividually deletes messages one by one, fallbackDeleteConc at a
// time, pausing between waves.
func (a *Adapter) deleteIndividually(ctx context.Context, messageIDs []string) error {
	for start := 0; start < len(messageIDs); start += fallbackDeleteConc {
		end := min(start+fallbackDeleteConc, len(messageIDs))

		g, gctx := errgroup.WithContext(ctx)

		for _, id := range messageIDs[start:end] {
			id := id
			g.Go(func() error {
				return a.DeleteOne(gctx, a.channelID, id)
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}

		if end < len(messageIDs) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(fallbackDeletePace):
			}
		}
	}

	return nil
}

// refreshRequest and refreshResponse are the wire shapes of the
// attachments/refresh-urls endpoint.
type refreshRequest struct {
	AttachmentURLs []string `json:"attachment_urls"`
}

type refreshResponse struct {
	RefreshedURLs []struct {
		Original  string `json:"original"`
		Refreshed string `json:"refreshed"`
	} `json:"refreshed_urls"`
}

// RefreshURLs exchanges expired CDN URLs for fresh ones, batching up to 50
// per call. The result is parallel to the input; a URL the API did not
// refresh comes back unchanged.
func (a *Adapter) RefreshURLs(ctx context.Context, urls []string) ([]string, error) {
	refreshed := make([]string, len(urls))
	copy(refreshed, urls)

	byOriginal := make(map[string]int, len(urls))
	for i, u := range urls {
		byOriginal[u] = i
	}

	for start := 0; start < len(urls); start += refreshBatch {
		end := min(start+refreshBatch, len(urls))

		body, err := a.session.Request(http.MethodPost, refreshEndpoint,
			refreshRequest{AttachmentURLs: urls[start:end]}, discordgo.WithContext(ctx))
		if err != nil {
			return nil, wrapREST(err)
		}

		var resp refreshResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("discord: decoding refresh response: %w", err)
		}

		for _, ru := range resp.RefreshedURLs {
			if i, ok := byOriginal[ru.Original]; ok && ru.Refreshed != "" {
				refreshed[i] = ru.Refreshed
			}
		}
	}

	a.logger.Debug("urls refreshed", slog.Int("count", len(urls)))

	return refreshed, nil
}

// AttachmentURL fetches a message and returns its current attachment URL.
// The channel id is explicit so callers can point the lookup at the backup
// channel as a fallback.
func (a *Adapter) AttachmentURL(ctx context.Context, channelID, messageID string) (string, error) {
	msg, err := a.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return "", wrapREST(err)
	}

	if len(msg.Attachments) == 0 {
		return "", fmt.Errorf("discord: message %s: %w", messageID, ErrNotFound)
	}

	return msg.Attachments[0].URL, nil
}

// ListMessages returns the most recent messages of a channel, newest first.
func (a *Adapter) ListMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	msgs, err := a.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, wrapREST(err)
	}

	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{ID: m.ID, Content: m.Content})
	}

	return out, nil
}

// Ping measures the REST round-trip to the primary channel. Used by the
// health endpoint.
func (a *Adapter) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	if _, err := a.session.Channel(a.channelID, discordgo.WithContext(ctx)); err != nil {
		return 0, wrapREST(err)
	}

	return time.Since(start), nil
}
