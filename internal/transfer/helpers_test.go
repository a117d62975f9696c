package transfer

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nekodrive/nekodrive/internal/index"
	"github.com/nekodrive/nekodrive/internal/testutil"
)

// newTestEngine wires an Engine over an in-memory index and a fake object
// store, with instant retry backoff.
func newTestEngine(t *testing.T) (*Engine, *index.Store, *testutil.FakeStore) {
	t.Helper()

	idx, err := index.Open(":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	store := testutil.NewFakeStore()

	e := NewEngine(idx, store, slog.Default())
	e.sleepFunc = func(context.Context, time.Duration) error { return nil }

	return e, idx, store
}
