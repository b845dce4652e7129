package store

import (
	"database/sql"
	"time"
)

// Meeting is one meeting session in a channel. At most one meeting per
// channel has IsActive set; an ended meeting is archival and is never
// deleted or mutated again.
type Meeting struct {
	ID        int64
	ChannelID string
	ChairID   string
	StartTime time.Time
	EndTime   sql.NullTime
	IsActive  bool
}

// Message is one recorded utterance inside a meeting. Append-only.
type Message struct {
	ID        int64
	MeetingID int64
	UserID    string
	Content   string
	Timestamp time.Time
}

// ActionItem is a task assigned during a meeting. AssignedTo holds a
// display name or a raw actor id, whatever the dispatcher resolved at
// creation time.
type ActionItem struct {
	ID         int64
	MeetingID  int64
	AssignedTo string
	Task       string
	CreatedAt  time.Time
	Completed  bool
}

// SpeakerStat holds per-speaker participation counters for one meeting.
// Counters only ever go up.
type SpeakerStat struct {
	MeetingID           int64
	UserID              string
	MessageCount        int
	TotalWords          int
	SpeakingTimeSeconds float64
}

// MeetingStatus is the snapshot behind the status command.
type MeetingStatus struct {
	Meeting          Meeting
	Duration         time.Duration
	CoChairIDs       []string
	MessageCount     int
	ParticipantCount int
	ActionItemCount  int
}
