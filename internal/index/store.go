package index

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the embedded metadata index. Writes are serialized through a
// single connection (SetMaxOpenConns(1)); reads never block on WAL mode
// readers. Every public method is one transaction.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if necessary) the index at path, applies pragmas and
// schema migrations, and returns a ready Store. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening metadata index", slog.String("path", path))

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open sqlite: %w", err)
	}

	// Sole-writer: serializes all mutations, sidesteps SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("metadata index ready", slog.String("path", path))

	return &Store{db: db, path: path, logger: logger}, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = NORMAL", "synchronous NORMAL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{"PRAGMA busy_timeout = 5000", "busy timeout"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("index: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", slog.String("pragma", p.desc))
	}

	return nil
}

// runMigrations applies all pending schema migrations to the database.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// Strip the "migrations/" prefix so goose sees files at the root of the FS.
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("index: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("index: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("index: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("index: close: %w", err)
	}

	return nil
}

// Path returns the on-disk location of the index file.
func (s *Store) Path() string {
	return s.path
}

// Vacuum rebuilds the database file, reclaiming space left by deleted rows.
// Called after finalize per the upload protocol.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("index: vacuum: %w", err)
	}

	return nil
}

// Checkpoint consolidates the WAL into the main database file so a snapshot
// of the file on disk is complete and self-contained.
func (s *Store) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("index: wal checkpoint: %w", err)
	}

	return nil
}

// Stats returns aggregate counts plus the index file size on disk.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{}

	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'trashed'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM files`)
	if err := row.Scan(&st.ActiveFiles, &st.TrashedFiles, &st.PendingFiles); err != nil {
		return nil, fmt.Errorf("index: counting files: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM chunks`)
	if err := row.Scan(&st.Chunks, &st.StoredBytes); err != nil {
		return nil, fmt.Errorf("index: counting chunks: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		st.IndexBytes = info.Size()
	}

	return st, nil
}
