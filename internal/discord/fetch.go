package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// userAgent identifies CDN fetches; API calls carry discordgo's own agent.
const userAgent = "nekodrive/0.1"

// Fetch streams a chunk body from its CDN URL. The URL is pre-signed, so no
// Authorization header is sent. rangeSpec, when non-empty, is sent as the
// Range header (e.g. "bytes=0-1023"); the CDN may answer 206 or ignore the
// header and answer 200, and the caller must handle both. On any other
// non-2xx the body is consumed into an UpstreamError. The caller closes the
// body on success. ctx bounds the whole exchange including the body read;
// the CDN client carries no timeout of its own.
func (a *Adapter) Fetch(ctx context.Context, url, rangeSpec string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("discord: creating fetch request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	if rangeSpec != "" {
		req.Header.Set("Range", rangeSpec)
	}

	resp, err := a.cdn.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discord: fetch request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()

		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	return resp, nil
}
