package discord

import (
	"net/url"
	"strconv"
	"time"
)

// Discord CDN URLs carry their expiry as a hex Unix timestamp in the "ex"
// query parameter. A URL without the parameter predates signed URLs and is
// treated as expired so the caller refreshes it.

// ExpiresAt extracts the expiry instant from a CDN URL. The second return
// is false when the URL has no parseable "ex" parameter.
func ExpiresAt(rawURL string) (time.Time, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return time.Time{}, false
	}

	ex := u.Query().Get("ex")
	if ex == "" {
		return time.Time{}, false
	}

	secs, err := strconv.ParseInt(ex, 16, 64)
	if err != nil {
		return time.Time{}, false
	}

	return time.Unix(secs, 0), true
}

// Expired reports whether a CDN URL needs refreshing. skew shifts the
// cutoff earlier: the range-stream path passes 5 minutes so a URL about to
// die mid-response is refreshed up front. Unparseable URLs count as
// expired — refreshing a live URL is harmless, serving a dead one is not.
func Expired(rawURL string, skew time.Duration) bool {
	at, ok := ExpiresAt(rawURL)
	if !ok {
		return true
	}

	return !time.Now().Add(skew).Before(at)
}
