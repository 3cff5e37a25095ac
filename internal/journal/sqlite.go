package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const memoryDSN = ":memory:"

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS build_events (
		seq      INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT    NOT NULL,
		crate    TEXT    NOT NULL DEFAULT '',
		kind     TEXT    NOT NULL,
		at_ms    INTEGER NOT NULL,
		body     TEXT    NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS build_events_build ON build_events(build_id)`,
	`CREATE INDEX IF NOT EXISTS build_events_at ON build_events(at_ms)`,
}

// SQLiteStore is the Store backed by modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the database at path, creating it and its directory
// when missing. ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		return err
	}
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return err
	}
	if version >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range migrations {
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, r *Record) error {
	r.At = s.now()
	body := string(r.Body)
	if body == "" {
		body = "{}"
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO build_events (build_id, crate, kind, at_ms, body) VALUES (?, ?, ?, ?, ?)`,
		r.BuildID, r.Crate, r.Kind, r.At.UnixMilli(), body)
	if err != nil {
		return fmt.Errorf("insert %s event: %w", r.Kind, err)
	}
	r.Seq, err = res.LastInsertId()
	return err
}

// Build implements Store.
func (s *SQLiteStore) Build(ctx context.Context, buildID string) ([]Record, error) {
	return s.query(ctx, `WHERE build_id = ?`, buildID)
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	var where []string
	var args []any
	if !f.Since.IsZero() {
		where = append(where, "at_ms >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if f.Crate != "" {
		where = append(where, "crate = ?")
		args = append(args, f.Crate)
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}
	return s.query(ctx, clause, args...)
}

// Prune implements Store.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM build_events WHERE build_id IN (
			SELECT build_id FROM build_events GROUP BY build_id HAVING MIN(at_ms) < ?
		)`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) query(ctx context.Context, clause string, args ...any) ([]Record, error) {
	// #nosec G202 -- clause is assembled from fixed fragments
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, build_id, crate, kind, at_ms, body FROM build_events `+clause+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var (
			r    Record
			atMS int64
			body string
		)
		if err := rows.Scan(&r.Seq, &r.BuildID, &r.Crate, &r.Kind, &atMS, &body); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.At = time.UnixMilli(atMS)
		r.Body = []byte(body)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
