// Package sqlitestore implements the trial log, reward log, blacklist, and
// manifest-digest cache as SQLite-backed domain.TrialLog / domain.RewardLog
// / domain.Blacklist implementations, using the pure-Go modernc.org/sqlite
// driver so the binary stays cgo-free.
package sqlitestore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sqlite connection and applies the package's migrations on
// open.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and applies
// all pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", path, err)
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid pool contention

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn exposes the underlying *sql.DB for collaborator packages (e.g.
// manifest) that need to extend the schema with their own tables.
func (db *DB) Conn() *sql.DB { return db.conn }

// migrations returns the schema migration statements, one statement per
// entry so sqlite can execute them individually.
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS trials (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			exercise   INTEGER NOT NULL,
			score      INTEGER NOT NULL,
			ts_unix    INTEGER NOT NULL,
			inserted_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trials_exercise ON trials(exercise, ts_unix DESC, id DESC)`,

		`CREATE TABLE IF NOT EXISTS reward_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			unit       INTEGER NOT NULL,
			magnitude  REAL NOT NULL,
			ts_unix    INTEGER NOT NULL,
			inserted_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rewards_unit ON reward_events(unit, ts_unix DESC, id DESC)`,

		`CREATE TABLE IF NOT EXISTS blacklist (
			unit INTEGER PRIMARY KEY
		)`,

		`CREATE TABLE IF NOT EXISTS manifest_refs (
			unit   INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			path   TEXT NOT NULL
		)`,
	}
}

func (db *DB) migrate() error {
	for _, stmt := range migrations() {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("sqlitestore: migration failed: %w", err)
		}
	}
	return nil
}
