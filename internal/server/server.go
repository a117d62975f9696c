// Package server exposes the storage engine over HTTP: the /api surface with
// its {success, data, error} envelope, shared-secret auth, and the streaming
// download and range endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nekodrive/nekodrive/internal/index"
	"github.com/nekodrive/nekodrive/internal/transfer"
)

// HealthPinger measures reachability of the external store. Implemented by
// *discord.Adapter.
type HealthPinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Options configures a Server.
type Options struct {
	Index     *index.Store
	Engine    *transfer.Engine
	Pinger    HealthPinger
	APISecret string // empty disables authentication
	Version   string
	Logger    *slog.Logger

	// IdleTimeout for client connections. Raised well above default so
	// long-running streams are not cut off. Zero means no timeout.
	IdleTimeout time.Duration
}

// Server carries the handler dependencies and the cached external-store
// health snapshot.
type Server struct {
	index   *index.Store
	engine  *transfer.Engine
	pinger  HealthPinger
	secret  string
	version string
	logger  *slog.Logger

	idleTimeout time.Duration
	startedAt   time.Time

	healthMu      sync.Mutex
	healthSnap    *discordHealth
	healthChecked time.Time
}

// New creates a Server. A nil logger falls back to slog.Default().
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		index:       opts.Index,
		engine:      opts.Engine,
		pinger:      opts.Pinger,
		secret:      opts.APISecret,
		version:     opts.Version,
		logger:      logger,
		idleTimeout: opts.IdleTimeout,
		startedAt:   time.Now(),
	}
}

// ListenAndServe serves the API on addr until ctx is cancelled, then drains
// in-flight requests within shutdownTimeout and waits for the engine's
// background work.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}

	return s.serve(ctx, l, shutdownTimeout)
}

// serve runs the HTTP server on l until ctx is cancelled. Request contexts
// are deliberately not derived from ctx: cancellation stops accepting new
// connections while Shutdown lets running handlers finish within
// shutdownTimeout.
func (s *Server) serve(ctx context.Context, l net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		IdleTimeout: s.idleTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("http server listening", slog.String("addr", l.Addr().String()))
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	s.engine.Wait()

	return nil
}
