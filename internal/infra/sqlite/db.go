// Package sqlite provides SQLite-based persistent storage for challenges,
// quizzes and the XP ledger. Uses WAL mode for concurrent reads and
// crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/state.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "state.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer. Every transaction below uses only its *sql.Tx,
	// never d.db, or it would wait on itself.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Challenges
		`CREATE TABLE IF NOT EXISTS challenges (
			id            TEXT PRIMARY KEY,
			template_id   TEXT NOT NULL,
			title         TEXT NOT NULL,
			title_key     TEXT NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			type          TEXT NOT NULL,
			format        TEXT NOT NULL DEFAULT 'standard',
			progress_rule TEXT NOT NULL,
			activity_type TEXT NOT NULL DEFAULT '',
			increment     INTEGER NOT NULL DEFAULT 0,
			target        INTEGER NOT NULL,
			reward        INTEGER NOT NULL DEFAULT 0,
			topic         TEXT NOT NULL DEFAULT '',
			difficulty    TEXT NOT NULL DEFAULT '',
			start_at      INTEGER NOT NULL,
			end_at        INTEGER NOT NULL,
			created_at    INTEGER NOT NULL,
			CHECK (start_at < end_at),
			CHECK (target > 0)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_challenges_window
			ON challenges(type, title_key, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_challenges_active ON challenges(start_at, end_at)`,

		`CREATE TABLE IF NOT EXISTS challenge_quizzes (
			challenge_id TEXT NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			position     INTEGER NOT NULL,
			quiz_id      TEXT NOT NULL,
			PRIMARY KEY (challenge_id, position)
		)`,

		`CREATE TABLE IF NOT EXISTS challenge_completions (
			challenge_id       TEXT NOT NULL REFERENCES challenges(id) ON DELETE CASCADE,
			user_id            TEXT NOT NULL,
			progress           INTEGER NOT NULL DEFAULT 0,
			completed          BOOLEAN NOT NULL DEFAULT 0,
			completed_at       INTEGER,
			current_quiz_index INTEGER NOT NULL DEFAULT 0,
			quiz_attempts      TEXT NOT NULL DEFAULT '[]',
			final_score        INTEGER,
			percentile         INTEGER,
			joined_at          INTEGER NOT NULL,
			updated_at         INTEGER NOT NULL,
			PRIMARY KEY (challenge_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_user ON challenge_completions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_completions_score
			ON challenge_completions(challenge_id, completed, final_score)`,

		// Quizzes and usage
		`CREATE TABLE IF NOT EXISTS quizzes (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			topic      TEXT NOT NULL DEFAULT '',
			difficulty TEXT NOT NULL DEFAULT 'medium',
			quiz_type  TEXT NOT NULL DEFAULT 'multiple_choice',
			questions  TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS quiz_attempts (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			quiz_id         TEXT NOT NULL,
			score           INTEGER NOT NULL,
			total_questions INTEGER NOT NULL,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quiz_attempts_created ON quiz_attempts(created_at)`,

		// Identity and XP
		`CREATE TABLE IF NOT EXISTS users (
			id           TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			created_at   INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS xp_ledger (
			user_id    TEXT NOT NULL,
			source     TEXT NOT NULL,
			ref        TEXT NOT NULL,
			amount     INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, source, ref)
		)`,
		`CREATE TABLE IF NOT EXISTS user_xp (
			user_id    TEXT PRIMARY KEY,
			xp         INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back on error.
func (d *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Times are stored as unix milliseconds so completion order survives
// sub-second finishes.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}
