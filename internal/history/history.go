// Package history keeps past snapshots in a SQLite database so that an
// earlier layout can be restored after the snapshot file was overwritten.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	verrors "github.com/Iron-Ham/vimsaver/internal/errors"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
)

// Entry is one recorded snapshot.
type Entry struct {
	ID        string
	Session   string
	Backend   string
	CreatedAt time.Time
	snapshot.Summary
	// Snapshot is only populated by Get and Latest.
	Snapshot snapshot.Snapshot
}

// Store is a SQLite-backed snapshot history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, verrors.New("empty history path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive between calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS snapshots(
		id TEXT PRIMARY KEY,
		session TEXT NOT NULL,
		backend TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		windows INTEGER NOT NULL,
		instances INTEGER NOT NULL,
		items INTEGER NOT NULL,
		body TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS snapshots_session_created ON snapshots(session, created_at);`)
	if err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Record stores snap and returns its entry.
func (s *Store) Record(ctx context.Context, session, backend string, snap snapshot.Snapshot) (Entry, error) {
	body, err := snapshot.Encode(snap)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:        uuid.NewString(),
		Session:   session,
		Backend:   backend,
		CreatedAt: s.now().UTC(),
		Summary:   snap.Summarize(),
		Snapshot:  snap,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots(id, session, backend, created_at, windows, instances, items, body)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?);`,
		e.ID, e.Session, e.Backend, e.CreatedAt.UnixNano(), e.Windows, e.Instances, e.Items, string(body))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to record snapshot: %w", err)
	}
	return e, nil
}

// List returns the newest entries of session, newest first, without bodies.
// A limit of zero or less returns every entry.
func (s *Store) List(ctx context.Context, session string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, backend, created_at, windows, instances, items
		FROM snapshots WHERE session = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?;`, session, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.ID, &e.Session, &e.Backend, &created, &e.Windows, &e.Instances, &e.Items); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry whose id is id or starts with it. The prefix is
// compared literally; an exact match wins over longer ids.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Entry{}, verrors.NewNotFoundError("snapshot", id)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, backend, created_at, windows, instances, items, body
		FROM snapshots WHERE substr(id, 1, length(?)) = ?
		ORDER BY id = ? DESC LIMIT 2;`, id, id, id)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read history: %w", err)
	}
	entries, err := scanFull(rows)
	if err != nil {
		return Entry{}, err
	}
	switch len(entries) {
	case 0:
		return Entry{}, verrors.NewNotFoundError("snapshot", id)
	case 1:
		return entries[0], nil
	default:
		for _, e := range entries {
			if e.ID == id {
				return e, nil
			}
		}
		return Entry{}, fmt.Errorf("snapshot id prefix %q is ambiguous", id)
	}
}

// Latest returns the newest entry of session.
func (s *Store) Latest(ctx context.Context, session string) (Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, backend, created_at, windows, instances, items, body
		FROM snapshots WHERE session = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1;`, session)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read history: %w", err)
	}
	entries, err := scanFull(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, verrors.NewNotFoundError("snapshot", "latest for session "+session)
	}
	return entries[0], nil
}

func scanFull(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		var body string
		if err := rows.Scan(&e.ID, &e.Session, &e.Backend, &created, &e.Windows, &e.Instances, &e.Items, &body); err != nil {
			return nil, err
		}
		snap, err := snapshot.Decode([]byte(body))
		if err != nil {
			return nil, verrors.Wrapf(err, "history entry %s", e.ID)
		}
		e.CreatedAt = time.Unix(0, created).UTC()
		e.Snapshot = snap
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
