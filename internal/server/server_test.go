package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nekodrive/nekodrive/internal/index"
	"github.com/nekodrive/nekodrive/internal/testutil"
	"github.com/nekodrive/nekodrive/internal/transfer"
)

type stubPinger struct {
	err  error
	hook func()
}

func (p *stubPinger) Ping(ctx context.Context) (time.Duration, error) {
	if p.hook != nil {
		p.hook()
	}

	return 5 * time.Millisecond, p.err
}

type testServer struct {
	srv     *Server
	handler http.Handler
	index   *index.Store
	engine  *transfer.Engine
	store   *testutil.FakeStore
	pinger  *stubPinger
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()

	idx, err := index.Open(":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	store := testutil.NewFakeStore()
	engine := transfer.NewEngine(idx, store, slog.Default())
	pinger := &stubPinger{}

	srv := New(Options{
		Index:     idx,
		Engine:    engine,
		Pinger:    pinger,
		APISecret: secret,
		Version:   "test",
		Logger:    slog.Default(),
	})

	return &testServer{
		srv:     srv,
		handler: srv.Handler(),
		index:   idx,
		engine:  engine,
		store:   store,
		pinger:  pinger,
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details string          `json:"details"`
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	return rec
}

func (ts *testServer) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	return ts.do(t, method, path, bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return resp
}

func dataMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	resp := decode(t, rec)

	var data map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &data))

	return data
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, "hunter2")

	// No credentials.
	rec := ts.do(t, http.MethodGet, "/api/files", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, decode(t, rec).Success)

	// Wrong secret.
	rec = ts.do(t, http.MethodGet, "/api/files", nil, map[string]string{"Authorization": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Raw header.
	rec = ts.do(t, http.MethodGet, "/api/files", nil, map[string]string{"Authorization": "hunter2"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Bearer form.
	rec = ts.do(t, http.MethodGet, "/api/files", nil, map[string]string{"Authorization": "Bearer hunter2"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Query parameter.
	rec = ts.do(t, http.MethodGet, "/api/files?token=hunter2", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_DisabledWithoutSecret(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/files", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/system/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := dataMap(t, rec)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "test", data["version"])

	discordData, ok := data["discord"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, discordData["ok"])
}

func TestHealth_CachesDiscordProbe(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/system/health", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// The probe now fails, but the snapshot is still within its TTL.
	ts.pinger.err = errors.New("gateway down")

	rec = ts.do(t, http.MethodGet, "/api/system/health", nil, nil)
	data := dataMap(t, rec)
	assert.Equal(t, "ok", data["status"])
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/system/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := dataMap(t, rec)
	assert.Contains(t, data, "activeFiles")
	assert.Contains(t, data, "storedBytes")
}

func TestBackup_Unconfigured(t *testing.T) {
	ts := newTestServer(t, "")
	ts.store.BackupChannel = ""

	rec := ts.do(t, http.MethodPost, "/api/system/backup", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Cancelling the serve context must stop new connections, not requests
// already being served: the download below is mid-fetch when shutdown
// begins and still completes.
func TestServe_DrainsInFlightRequests(t *testing.T) {
	ts := newTestServer(t, "")
	ts.mkChunked(t, "a", "movie.bin", "AAAA")

	started := make(chan struct{})
	release := make(chan struct{})
	ts.store.FetchHook = func() {
		close(started)
		<-release
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)

	go func() { served <- ts.srv.serve(ctx, l, 5*time.Second) }()

	type result struct {
		status int
		body   string
		err    error
	}

	got := make(chan result, 1)

	go func() {
		resp, err := http.Get("http://" + l.Addr().String() + "/api/download/a?index=0")
		if err != nil {
			got <- result{err: err}
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		got <- result{status: resp.StatusCode, body: string(body), err: err}
	}()

	<-started

	// Shutdown begins while the download is still in flight.
	cancel()
	close(release)

	res := <-got
	require.NoError(t, res.err)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "AAAA", res.body)

	require.NoError(t, <-served)
}

// Health checks must not queue behind a slow upstream probe.
func TestHealth_ConcurrentProbes(t *testing.T) {
	ts := newTestServer(t, "")

	entered := make(chan struct{}, 2)
	release := make(chan struct{})
	ts.pinger.hook = func() {
		entered <- struct{}{}
		<-release
	}

	codes := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() {
			rec := ts.do(t, http.MethodGet, "/api/system/health", nil, nil)
			codes <- rec.Code
		}()
	}

	// Both requests miss the cache and must reach the probe concurrently;
	// a request stuck behind the other's network call never arrives here.
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatal("health check queued behind a slow probe")
		}
	}
	close(release)

	assert.Equal(t, http.StatusOK, <-codes)
	assert.Equal(t, http.StatusOK, <-codes)
}
