/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements both persistence ports (points.Store, progress.Store) in one
  database file. Selected with `store: sqlite` in the configuration; the
  JSON document stays the default.

INTERFACES IMPLEMENTED:
  points.Store:   Point snapshot history
  progress.Store: Daily search progress

APPEND-ONLY ENFORCEMENT:
  The snapshots table is append-only:
  - No UPDATE statements on snapshots
  - No DELETE statements on snapshots
  Only the account label and progress rows are ever rewritten.

KEY TABLES:
  accounts:  One row per identity with its label (email)
  snapshots: Immutable point readings
  progress:  One row per identity, overwritten on every search

INDEXES:
  - idx_snapshots_identity_taken: History load (hot path)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single connection so that
  ":memory:" databases are shared by every query.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := points.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). ImportHistory copies an existing JSON
  point log into an empty database.

SEE ALSO:
  - points/store.go: The Store contract
  - store/jsonfile: Default backend
  - progress/progress.go: Progress contract
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/progress"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ points.Store   = (*Store)(nil)
	_ progress.Store = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		identity TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Snapshots (append-only)
	CREATE TABLE IF NOT EXISTS snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL REFERENCES accounts(identity),
		day TEXT NOT NULL,
		taken_at TEXT NOT NULL,
		points INTEGER NOT NULL CHECK (points >= 0),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_identity_taken
		ON snapshots(identity, taken_at, id);

	CREATE TABLE IF NOT EXISTS progress (
		identity TEXT PRIMARY KEY,
		completed INTEGER NOT NULL,
		number INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// POINT STORE (points.Store interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append adds a snapshot, creating the account when absent.
func (s *Store) Append(ctx context.Context, identity points.Identity, label string, snap points.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.upsertAccount(ctx, tx, identity, label); err != nil {
		return err
	}
	if err := s.insertSnapshot(ctx, tx, identity, snap); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) upsertAccount(ctx context.Context, db execer, identity points.Identity, label string) error {
	query := `
		INSERT INTO accounts (identity, label, created_at) VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			label = CASE WHEN excluded.label = '' THEN accounts.label ELSE excluded.label END
	`
	_, err := db.ExecContext(ctx, query, string(identity), label, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (s *Store) insertSnapshot(ctx context.Context, db execer, identity points.Identity, snap points.Snapshot) error {
	day := snap.Date
	if day.IsZero() {
		day = points.DateOf(snap.At)
	}

	query := `
		INSERT INTO snapshots (identity, day, taken_at, points, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		string(identity),
		day.String(),
		snap.At.Format(time.RFC3339),
		snap.Points,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append snapshot: %w", err)
	}
	return nil
}

// Load returns every account with its snapshots in insertion order.
func (s *Store) Load(ctx context.Context) (points.History, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := make(points.History)

	rows, err := s.db.QueryContext(ctx, `SELECT identity, label FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	for rows.Next() {
		var id, label string
		if err := rows.Scan(&id, &label); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		history[points.Identity(id)] = points.Account{Label: label, Snapshots: []points.Snapshot{}}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT identity, day, taken_at, points
		FROM snapshots
		ORDER BY identity, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		acct := history[snap.Identity]
		acct.Snapshots = append(acct.Snapshots, snap)
		history[snap.Identity] = acct
	}

	return history, rows.Err()
}

func scanSnapshot(rows *sql.Rows) (points.Snapshot, error) {
	var (
		snap    points.Snapshot
		id      string
		day     string
		takenAt string
	)

	if err := rows.Scan(&id, &day, &takenAt, &snap.Points); err != nil {
		return snap, fmt.Errorf("failed to scan snapshot: %w", err)
	}

	snap.Identity = points.Identity(id)
	snap.At, _ = time.Parse(time.RFC3339, takenAt)
	d, err := points.ParseDate(day)
	if err != nil {
		d = points.DateOf(snap.At)
	}
	snap.Date = d

	return snap, nil
}

// ImportHistory copies a whole history in one transaction. Snapshots keep
// their per-identity order.
func (s *Store) ImportHistory(ctx context.Context, history points.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range history.Identities() {
		acct := history[id]
		if err := s.upsertAccount(ctx, tx, id, acct.Label); err != nil {
			return err
		}
		for _, snap := range acct.Snapshots {
			if err := s.insertSnapshot(ctx, tx, id, snap); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// =============================================================================
// PROGRESS STORE (progress.Store interface)
// =============================================================================

func (s *Store) Get(ctx context.Context, identity points.Identity) (progress.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec       = progress.Record{Identity: identity}
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT completed, number, updated_at FROM progress WHERE identity = ?`,
		string(identity),
	).Scan(&rec.Completed, &rec.Number, &updatedAt)
	if err == sql.ErrNoRows {
		return progress.Record{}, false, nil
	}
	if err != nil {
		return progress.Record{}, false, fmt.Errorf("failed to get progress: %w", err)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return rec, true, nil
}

func (s *Store) Put(ctx context.Context, rec progress.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO progress (identity, completed, number, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			completed = excluded.completed,
			number = excluded.number,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(rec.Identity), rec.Completed, rec.Number, rec.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, identities ...points.Identity) error {
	if len(identities) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(identities)), ",")
	args := make([]any, len(identities))
	for i, id := range identities {
		args[i] = string(id)
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM progress WHERE identity IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("failed to delete progress: %w", err)
	}
	return nil
}

func (s *Store) All(ctx context.Context) ([]progress.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, completed, number, updated_at FROM progress ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	defer rows.Close()

	var out []progress.Record
	for rows.Next() {
		var (
			rec       progress.Record
			id        string
			updatedAt string
		)
		if err := rows.Scan(&id, &rec.Completed, &rec.Number, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		rec.Identity = points.Identity(id)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// SnapshotCount returns the number of stored snapshots.
func (s *Store) SnapshotCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&count)
	return count, err
}
