package sqlitestore

import (
	"context"
	"database/sql"

	"github.com/trane-project/trane/internal/domain"
)

// Blacklist is a domain.Blacklist backed by the blacklist table.
type Blacklist struct{ db *DB }

// NewBlacklist wraps db as a domain.Blacklist.
func NewBlacklist(db *DB) *Blacklist { return &Blacklist{db: db} }

// Contains reports whether h is blacklisted.
func (b *Blacklist) Contains(ctx context.Context, h domain.UnitHandle) (bool, error) {
	var unit int64
	err := b.db.conn.QueryRowContext(ctx, `SELECT unit FROM blacklist WHERE unit = ?`, int64(h)).Scan(&unit)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Add blacklists h.
func (b *Blacklist) Add(ctx context.Context, h domain.UnitHandle) error {
	_, err := b.db.conn.ExecContext(ctx, `INSERT OR IGNORE INTO blacklist (unit) VALUES (?)`, int64(h))
	return err
}

// Remove clears h's blacklist entry, if any.
func (b *Blacklist) Remove(ctx context.Context, h domain.UnitHandle) error {
	_, err := b.db.conn.ExecContext(ctx, `DELETE FROM blacklist WHERE unit = ?`, int64(h))
	return err
}
