// Package testutil holds test doubles shared by the engine and server test
// suites. Nothing here ships in production binaries.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nekodrive/nekodrive/internal/discord"
)

// FakeStore is an in-memory stand-in for the Discord adapter. Uploaded blobs
// are addressable by message id and by their generated CDN URL; URLs can be
// forced to fail with a given status to exercise refresh and retry paths.
// Inspect the recording fields after the engine's background work settles.
type FakeStore struct {
	mu sync.Mutex

	Channel       string
	BackupChannel string

	nextID int
	blobs  map[string][]byte // message id -> body
	urls   map[string]string // message id -> current URL
	byURL  map[string]string // URL -> message id

	FetchStatus map[string]int // URL -> forced upstream status
	IgnoreRange bool           // answer 200 with the full body despite Range

	Deleted      []string
	BulkCalls    [][]string
	RefreshCalls int
	JITCalls     int
	Snapshots    []Snapshot
	Messages     map[string][]discord.Message

	UploadHook func() // runs at the start of Upload, before any state change
	FetchHook  func() // runs at the start of Fetch, before any lookup
}

// Snapshot records one SendSnapshot call.
type Snapshot struct {
	ChannelID string
	Content   string
	Filename  string
	Data      []byte
}

// NewFakeStore returns a FakeStore with a primary and a backup channel.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Channel:       "primary",
		BackupChannel: "backup",
		blobs:         map[string][]byte{},
		urls:          map[string]string{},
		byURL:         map[string]string{},
		FetchStatus:   map[string]int{},
		Messages:      map[string][]discord.Message{},
	}
}

// FreshURL builds a CDN URL whose ex parameter is an hour in the future.
func FreshURL(messageID string) string {
	return fmt.Sprintf("https://cdn.fake/%s?ex=%x", messageID, time.Now().Add(time.Hour).Unix())
}

// ExpiredURL builds a CDN URL whose ex parameter is an hour in the past.
func ExpiredURL(messageID string) string {
	return fmt.Sprintf("https://cdn.fake/%s?ex=%x", messageID, time.Now().Add(-time.Hour).Unix())
}

// Register maps an extra URL onto an existing message, e.g. an expired URL
// recorded in a chunk row.
func (s *FakeStore) Register(messageID, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byURL[url] = messageID
}

// DropBlob removes a stored body so subsequent fetches fail with 404.
func (s *FakeStore) DropBlob(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, messageID)
}

func (s *FakeStore) ChannelID() string       { return s.Channel }
func (s *FakeStore) BackupChannelID() string { return s.BackupChannel }

func (s *FakeStore) Upload(ctx context.Context, blob io.Reader, filename string) (*discord.UploadResult, error) {
	if s.UploadHook != nil {
		s.UploadHook()
	}

	data, err := io.ReadAll(blob)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("msg-%d", s.nextID)
	url := FreshURL(id)

	s.blobs[id] = data
	s.urls[id] = url
	s.byURL[url] = id

	return &discord.UploadResult{MessageID: id, URL: url, Size: int64(len(data))}, nil
}

func (s *FakeStore) SendSnapshot(ctx context.Context, channelID, content, filename string, blob io.Reader) (*discord.UploadResult, error) {
	data, err := io.ReadAll(blob)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := fmt.Sprintf("msg-%d", s.nextID)

	s.Snapshots = append(s.Snapshots, Snapshot{
		ChannelID: channelID,
		Content:   content,
		Filename:  filename,
		Data:      data,
	})

	return &discord.UploadResult{MessageID: id, Size: int64(len(data))}, nil
}

func (s *FakeStore) DeleteOne(ctx context.Context, channelID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Deleted = append(s.Deleted, messageID)
	delete(s.blobs, messageID)

	return nil
}

func (s *FakeStore) BulkDelete(ctx context.Context, messageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.BulkCalls = append(s.BulkCalls, messageIDs)
	for _, id := range messageIDs {
		delete(s.blobs, id)
	}

	return nil
}

func (s *FakeStore) RefreshURLs(ctx context.Context, urls []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.RefreshCalls++

	out := make([]string, len(urls))
	copy(out, urls)

	for i, u := range urls {
		id, ok := s.byURL[u]
		if !ok {
			continue
		}

		fresh := FreshURL(id)
		s.urls[id] = fresh
		s.byURL[fresh] = id
		out[i] = fresh
	}

	return out, nil
}

func (s *FakeStore) AttachmentURL(ctx context.Context, channelID, messageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.JITCalls++

	if _, ok := s.blobs[messageID]; !ok {
		return "", &discord.UpstreamError{StatusCode: http.StatusNotFound, Err: discord.ErrNotFound}
	}

	return s.urls[messageID], nil
}

func (s *FakeStore) ListMessages(ctx context.Context, channelID string, limit int) ([]discord.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.Messages[channelID]
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}

	return msgs, nil
}

func (s *FakeStore) Fetch(ctx context.Context, url, rangeSpec string) (*http.Response, error) {
	if s.FetchHook != nil {
		s.FetchHook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if status, ok := s.FetchStatus[url]; ok {
		return nil, &discord.UpstreamError{StatusCode: status, Err: statusSentinel(status)}
	}

	id, ok := s.byURL[url]
	if !ok {
		return nil, &discord.UpstreamError{StatusCode: http.StatusNotFound, Err: discord.ErrNotFound}
	}

	body, ok := s.blobs[id]
	if !ok {
		return nil, &discord.UpstreamError{StatusCode: http.StatusNotFound, Err: discord.ErrNotFound}
	}

	status := http.StatusOK

	if rangeSpec != "" && !s.IgnoreRange {
		start, end, err := parseRangeSpec(rangeSpec)
		if err != nil {
			return nil, err
		}

		if end >= int64(len(body)) {
			end = int64(len(body)) - 1
		}

		body = body[start : end+1]
		status = http.StatusPartialContent
	}

	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}, nil
}

func statusSentinel(status int) error {
	switch status {
	case http.StatusForbidden:
		return discord.ErrForbidden
	case http.StatusGone:
		return discord.ErrGone
	case http.StatusNotFound:
		return discord.ErrNotFound
	default:
		return discord.ErrServerError
	}
}

func parseRangeSpec(spec string) (int64, int64, error) {
	rest, ok := strings.CutPrefix(spec, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("bad range spec %q", spec)
	}

	startStr, endStr, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, 0, fmt.Errorf("bad range spec %q", spec)
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return 0, 0, err
	}

	return start, end, nil
}
