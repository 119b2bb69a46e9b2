package sqlitestore

import (
	"context"
	"time"

	"github.com/trane-project/trane/internal/domain"
)

// RewardLog is a domain.RewardLog backed by the reward_events table.
type RewardLog struct{ db *DB }

// NewRewardLog wraps db as a domain.RewardLog.
func NewRewardLog(db *DB) *RewardLog { return &RewardLog{db: db} }

// Append records a reward event.
func (l *RewardLog) Append(ctx context.Context, e domain.RewardEvent) error {
	_, err := l.db.conn.ExecContext(ctx,
		`INSERT INTO reward_events (unit, magnitude, ts_unix, inserted_at) VALUES (?, ?, ?, ?)`,
		int64(e.Unit), e.SignedMagnitude, e.Timestamp.Unix(), time.Now().UnixNano(),
	)
	return err
}

// Recent returns the most recent n reward events for unit,
// reverse-chronological.
func (l *RewardLog) Recent(ctx context.Context, unit domain.UnitHandle, n int) ([]domain.RewardEvent, error) {
	rows, err := l.db.conn.QueryContext(ctx,
		`SELECT magnitude, ts_unix FROM reward_events WHERE unit = ? ORDER BY ts_unix DESC, id DESC LIMIT ?`,
		int64(unit), n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RewardEvent
	for rows.Next() {
		var magnitude float32
		var tsUnix int64
		if err := rows.Scan(&magnitude, &tsUnix); err != nil {
			return nil, err
		}
		out = append(out, domain.RewardEvent{
			Unit:            unit,
			SignedMagnitude: magnitude,
			Timestamp:       time.Unix(tsUnix, 0).UTC(),
		})
	}
	return out, rows.Err()
}
