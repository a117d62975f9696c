package discord

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cdnURL(expiry time.Time) string {
	return fmt.Sprintf("https://cdn.example.com/attachments/1/2/chunk.bin?ex=%x&is=0&hm=ff", expiry.Unix())
}

func TestExpiresAt(t *testing.T) {
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	at, ok := ExpiresAt(cdnURL(want))
	require.True(t, ok)
	assert.True(t, at.Equal(want))
}

func TestExpiresAt_Unparseable(t *testing.T) {
	for _, rawURL := range []string{
		"https://cdn.example.com/attachments/1/2/chunk.bin",          // no ex param
		"https://cdn.example.com/attachments/1/2/chunk.bin?ex=zzzz",  // not hex
		"://not-a-url",                                               // unparseable URL
		"https://cdn.example.com/attachments/1/2/chunk.bin?ex=",      // empty value
	} {
		_, ok := ExpiresAt(rawURL)
		assert.False(t, ok, rawURL)
	}
}

func TestExpired(t *testing.T) {
	assert.False(t, Expired(cdnURL(time.Now().Add(time.Hour)), 0))
	assert.True(t, Expired(cdnURL(time.Now().Add(-time.Hour)), 0))

	// A URL dying within the skew window counts as expired already.
	assert.True(t, Expired(cdnURL(time.Now().Add(2*time.Minute)), 5*time.Minute))
	assert.False(t, Expired(cdnURL(time.Now().Add(10*time.Minute)), 5*time.Minute))
}

func TestExpired_UnparseableCountsAsExpired(t *testing.T) {
	assert.True(t, Expired("https://cdn.example.com/a/b/c.bin", 0))
	assert.True(t, Expired("://not-a-url", 0))
}
