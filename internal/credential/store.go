package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists per-user state in a local SQLite database: the optional
// personal credential and a history of dispatch failures. The dispatcher
// itself never touches the store; callers read a personal token out of it
// when building a credential snapshot.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the database at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s := &Store{db: db}
	if err = s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS personal_tokens (
	username   TEXT PRIMARY KEY,
	token      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS dispatch_failures (
	id          TEXT PRIMARY KEY,
	label       TEXT NOT NULL,
	input       TEXT,
	output      TEXT,
	attempts    INTEGER NOT NULL,
	error       TEXT,
	occurred_at TIMESTAMP NOT NULL
);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

// PersonalToken returns the stored personal credential for username, or nil
// when none is configured.
func (s *Store) PersonalToken(ctx context.Context, username string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token, updated_at FROM personal_tokens WHERE username = ?`, username)
	var token string
	var updatedAt time.Time
	if err := row.Scan(&token, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load personal token: %w", err)
	}
	return &Credential{Token: token, CreatedAt: updatedAt}, nil
}

// SetPersonalToken stores or replaces the personal credential for username.
// An empty token removes it.
func (s *Store) SetPersonalToken(ctx context.Context, username, token string) error {
	if token == "" {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM personal_tokens WHERE username = ?`, username)
		return err
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO personal_tokens (username, token, updated_at) VALUES (?, ?, ?)
ON CONFLICT(username) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		username, token, time.Now().UTC())
	return err
}

// RecordFailure appends one dispatch failure record to the local history.
func (s *Store) RecordFailure(ctx context.Context, id, label, input, output string, attempts int, dispatchErr string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_failures (id, label, input, output, attempts, error, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, label, input, output, attempts, dispatchErr, time.Now().UTC())
	return err
}

// FailureCount reports how many failure records the history holds.
func (s *Store) FailureCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch_failures`).Scan(&n)
	return n, err
}
