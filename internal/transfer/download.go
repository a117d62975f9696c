package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nekodrive/nekodrive/internal/discord"
	"github.com/nekodrive/nekodrive/internal/index"
)

// Download tuning. The prefetch window of 2 keeps one chunk streaming to the
// client while the next two are in flight, which is enough to hide upstream
// latency without holding many 8 MiB bodies in memory.
const (
	prefetchWindow = 2
	fetchAttempts  = 2
	fetchBackoff   = time.Second
	fetchTimeout   = 120 * time.Second
)

// FetchChunk opens the body of one chunk from the CDN, retrying once. The
// first attempt refreshes the URL only if it is already expired; a retry
// always forces a refresh first, since 403/410 mean the URL died under us.
// Retries after other failures back off for a second. The returned body
// carries the fetch timeout; the caller must close it.
func (e *Engine) FetchChunk(ctx context.Context, c *index.Chunk) (io.ReadCloser, error) {
	var lastErr error

	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		url := e.ensureFresh(ctx, c, 0, attempt > 1)

		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)

		resp, err := e.store.Fetch(fetchCtx, url, "")
		if err == nil {
			return &fetchBody{ReadCloser: resp.Body, cancel: cancel}, nil
		}

		cancel()
		lastErr = err

		e.logger.Warn("chunk fetch failed",
			slog.String("file_id", c.FileID),
			slog.Int("idx", c.Idx),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		// Signature failures retry immediately with a forced refresh;
		// everything else waits out a backoff first.
		if attempt < fetchAttempts && !staleURLError(err) {
			if serr := e.sleepFunc(ctx, fetchBackoff); serr != nil {
				return nil, fmt.Errorf("transfer: chunk %s/%d: %w", c.FileID, c.Idx, serr)
			}
		}
	}

	return nil, fmt.Errorf("transfer: chunk %s/%d: %w", c.FileID, c.Idx, lastErr)
}

// staleURLError reports whether the upstream failure means the URL's
// signature is dead or the record moved: 403 or 410.
func staleURLError(err error) bool {
	return errors.Is(err, discord.ErrForbidden) || errors.Is(err, discord.ErrGone)
}

// fetchBody ties the per-fetch timeout context to the response body: the
// timeout covers reading the body, and closing the body releases it.
type fetchBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *fetchBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()

	return err
}

// StreamChunks writes the bodies of chunks to w in order, fetching with a
// sliding window: before chunk i is awaited, the fetch of chunk i+W is
// started. Cancellation abandons all outstanding prefetches; their bodies
// are drained and closed in the background.
func (e *Engine) StreamChunks(ctx context.Context, w io.Writer, chunks []index.Chunk) error {
	type fetched struct {
		body io.ReadCloser
		err  error
	}

	pending := make([]chan fetched, len(chunks))

	start := func(i int) {
		ch := make(chan fetched, 1)
		pending[i] = ch

		c := chunks[i]
		go func() {
			body, err := e.FetchChunk(ctx, &c)
			ch <- fetched{body: body, err: err}
		}()
	}

	// Abandoned prefetches still deliver; close whatever arrives.
	defer func() {
		for _, ch := range pending {
			if ch == nil {
				continue
			}

			go func(ch chan fetched) {
				if res := <-ch; res.body != nil {
					res.body.Close()
				}
			}(ch)
		}
	}()

	for i := 0; i < len(chunks) && i < prefetchWindow; i++ {
		start(i)
	}

	for i := range chunks {
		if next := i + prefetchWindow; next < len(chunks) {
			start(next)
		}

		var res fetched
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res = <-pending[i]:
		}

		pending[i] = nil

		if res.err != nil {
			return res.err
		}

		_, err := io.Copy(w, res.body)
		res.body.Close()

		if err != nil {
			return fmt.Errorf("transfer: streaming chunk %s/%d: %w", chunks[i].FileID, chunks[i].Idx, err)
		}
	}

	return nil
}
