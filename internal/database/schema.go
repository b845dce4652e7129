package database

import (
	"database/sql"
	"fmt"
)

// Schema statements are idempotent so Migrate can run on every start.
// Rows are never deleted anywhere in the bot, so there are no down
// migrations.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS meetings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		chair_id TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP,
		is_active INTEGER NOT NULL DEFAULT 1
	)`,

	// Hard backstop for the one-active-meeting-per-channel invariant.
	// The dispatcher serializes starts per channel, but a second
	// process pointed at the same file would still be caught here.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_meetings_one_active
		ON meetings (channel_id) WHERE is_active = 1`,

	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id INTEGER NOT NULL REFERENCES meetings (id),
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_meeting_ts
		ON messages (meeting_id, timestamp)`,

	`CREATE TABLE IF NOT EXISTS action_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id INTEGER NOT NULL REFERENCES meetings (id),
		assigned_to TEXT NOT NULL,
		task TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		completed INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS co_chairs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id INTEGER NOT NULL REFERENCES meetings (id),
		user_id TEXT NOT NULL,
		UNIQUE (meeting_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS speaker_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		meeting_id INTEGER NOT NULL REFERENCES meetings (id),
		user_id TEXT NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		total_words INTEGER NOT NULL DEFAULT 0,
		speaking_time_seconds REAL NOT NULL DEFAULT 0,
		UNIQUE (meeting_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS user_karma (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL UNIQUE,
		points INTEGER NOT NULL DEFAULT 0,
		last_updated TIMESTAMP NOT NULL
	)`,
}

// Migrate creates the bot's tables and indexes if they do not exist.
func Migrate(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
