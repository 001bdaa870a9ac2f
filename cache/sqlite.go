package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
`

// SQLiteStore keeps cache entries in a SQLite database (pure Go driver)
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens or creates the database at path. An empty path gives a
// private in-memory database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Single writer, and a single connection keeps ":memory:" one database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, key string) (Entry, bool, error) {
	var (
		e                  Entry
		created, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, created_at, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&e.Data, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to load %s: %w", key, err)
	}

	e.CreatedAt = time.Unix(0, created)
	e.ExpiresAt = time.Unix(0, expiresAt)
	return e, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, key string, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, data, created_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		key, e.Data, e.CreatedAt.UnixNano(), e.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix. substr avoids LIKE
// wildcards hiding in keys.
func (s *SQLiteStore) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE substr(key, 1, length(?)) = ?`, prefix, prefix)
	if err != nil {
		return fmt.Errorf("failed to delete prefix %s: %w", prefix, err)
	}
	return nil
}

// PurgeExpired drops entries that expired before now and returns how many went
func (s *SQLiteStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", err)
	}
	return res.RowsAffected()
}

// Len returns the number of stored entries, expired ones included
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
