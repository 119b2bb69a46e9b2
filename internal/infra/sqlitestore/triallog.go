package sqlitestore

import (
	"context"
	"time"

	"github.com/trane-project/trane/internal/domain"
)

// TrialLog is a domain.TrialLog backed by the trials table.
type TrialLog struct{ db *DB }

// NewTrialLog wraps db as a domain.TrialLog.
func NewTrialLog(db *DB) *TrialLog { return &TrialLog{db: db} }

// Append records a trial. Log invariants per spec §3: no in-place
// mutation; ordering within equal timestamps is insertion order, captured
// here via the autoincrement id as a tiebreaker.
func (l *TrialLog) Append(ctx context.Context, t domain.Trial) error {
	_, err := l.db.conn.ExecContext(ctx,
		`INSERT INTO trials (exercise, score, ts_unix, inserted_at) VALUES (?, ?, ?, ?)`,
		int64(t.Exercise), t.Score, t.Timestamp.Unix(), time.Now().UnixNano(),
	)
	return err
}

// Recent returns the most recent n trials for exercise, in
// reverse-chronological order (insertion order breaks timestamp ties).
func (l *TrialLog) Recent(ctx context.Context, exercise domain.UnitHandle, n int) ([]domain.Trial, error) {
	rows, err := l.db.conn.QueryContext(ctx,
		`SELECT score, ts_unix FROM trials WHERE exercise = ? ORDER BY ts_unix DESC, id DESC LIMIT ?`,
		int64(exercise), n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Trial
	for rows.Next() {
		var score int
		var tsUnix int64
		if err := rows.Scan(&score, &tsUnix); err != nil {
			return nil, err
		}
		out = append(out, domain.Trial{
			Exercise:  exercise,
			Score:     score,
			Timestamp: time.Unix(tsUnix, 0).UTC(),
		})
	}
	return out, rows.Err()
}
