// Package karma keeps the workspace-wide karma ledger. Karma is a
// free-standing per-actor score: it outlives meetings and is not tied
// to any channel.
package karma

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Entry is one leaderboard row.
type Entry struct {
	UserID      string
	Points      int
	LastUpdated time.Time
}

// Ledger stores per-actor karma points.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger on top of an already-migrated database.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Adjust applies delta (+1 or -1) to the actor's karma and returns the
// new total. The row is created lazily at zero. The single UPSERT keeps
// concurrent adjustments from losing updates.
func (l *Ledger) Adjust(ctx context.Context, userID string, delta int, now time.Time) (int, error) {
	var points int
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO user_karma (user_id, points, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			points = points + excluded.points,
			last_updated = excluded.last_updated
		RETURNING points
	`, userID, delta, now.UTC()).Scan(&points)
	if err != nil {
		return 0, fmt.Errorf("failed to adjust karma: %w", err)
	}
	return points, nil
}

// Leaderboard returns up to limit entries ordered by points descending.
// Ties keep row-creation order so repeated listings are stable.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT user_id, points, last_updated
		FROM user_karma
		ORDER BY points DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.UserID, &e.Points, &e.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan karma entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating karma entries: %w", err)
	}
	return entries, nil
}
