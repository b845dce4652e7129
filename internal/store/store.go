package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

var (
	// ErrAlreadyActive is returned when a meeting start collides with an
	// active meeting in the same channel.
	ErrAlreadyActive = errors.New("meeting already active in channel")

	// ErrNoActiveMeeting is returned by operations that require an
	// active meeting when the channel has none.
	ErrNoActiveMeeting = errors.New("no active meeting in channel")
)

// Store is the authoritative per-channel meeting state: meetings, their
// recorded messages, speaker stats, co-chairs and action items. Every
// mutation is transactional. Lifecycle mutations are additionally
// serialized per channel so two simultaneous starts cannot both pass
// the active-meeting check; the partial unique index on meetings is the
// backstop for anything that slips past.
type Store struct {
	db    *sql.DB
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store on top of an already-migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) channelLock(channelID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[channelID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[channelID] = l
	}
	return l
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// StartMeeting opens a new meeting in the channel with the given chair.
func (s *Store) StartMeeting(ctx context.Context, channelID, chairID string, now time.Time) (*Meeting, error) {
	l := s.channelLock(channelID)
	l.Lock()
	defer l.Unlock()

	active, err := s.ActiveMeeting(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrAlreadyActive
	}

	meeting := &Meeting{
		ChannelID: channelID,
		ChairID:   chairID,
		StartTime: now.UTC(),
		IsActive:  true,
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO meetings (channel_id, chair_id, start_time, is_active)
		VALUES (?, ?, ?, 1)
		RETURNING id
	`, meeting.ChannelID, meeting.ChairID, meeting.StartTime).Scan(&meeting.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyActive
		}
		return nil, fmt.Errorf("failed to start meeting: %w", err)
	}

	log.Info().
		Int64("meeting_id", meeting.ID).
		Str("channel_id", channelID).
		Str("chair_id", chairID).
		Msg("Meeting started")

	return meeting, nil
}

// EndMeeting closes the channel's active meeting. The meeting row keeps
// its end time and becomes read-only from the bot's point of view.
func (s *Store) EndMeeting(ctx context.Context, channelID string, now time.Time) (*Meeting, error) {
	l := s.channelLock(channelID)
	l.Lock()
	defer l.Unlock()

	meeting, err := s.ActiveMeeting(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if meeting == nil {
		return nil, ErrNoActiveMeeting
	}

	end := now.UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE meetings SET end_time = ?, is_active = 0 WHERE id = ?
	`, end, meeting.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to end meeting: %w", err)
	}

	meeting.EndTime = sql.NullTime{Time: end, Valid: true}
	meeting.IsActive = false

	log.Info().
		Int64("meeting_id", meeting.ID).
		Str("channel_id", channelID).
		Msg("Meeting ended")

	return meeting, nil
}

// ChangeChair hands the chair of the active meeting to another actor.
func (s *Store) ChangeChair(ctx context.Context, channelID, newChairID string) error {
	l := s.channelLock(channelID)
	l.Lock()
	defer l.Unlock()

	meeting, err := s.ActiveMeeting(ctx, channelID)
	if err != nil {
		return err
	}
	if meeting == nil {
		return ErrNoActiveMeeting
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE meetings SET chair_id = ? WHERE id = ?
	`, newChairID, meeting.ID)
	if err != nil {
		return fmt.Errorf("failed to change chair: %w", err)
	}
	return nil
}

// AddCoChair records an actor as co-chair of the active meeting.
// Adding the same actor twice is a no-op.
func (s *Store) AddCoChair(ctx context.Context, channelID, userID string) error {
	l := s.channelLock(channelID)
	l.Lock()
	defer l.Unlock()

	meeting, err := s.ActiveMeeting(ctx, channelID)
	if err != nil {
		return err
	}
	if meeting == nil {
		return ErrNoActiveMeeting
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO co_chairs (meeting_id, user_id) VALUES (?, ?)
		ON CONFLICT (meeting_id, user_id) DO NOTHING
	`, meeting.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to add co-chair: %w", err)
	}
	return nil
}

// RecordMessage appends an utterance to the channel's active meeting
// and bumps the speaker's counters in the same transaction. Without an
// active meeting it does nothing and reports false.
func (s *Store) RecordMessage(ctx context.Context, channelID, userID, content string, now time.Time) (bool, error) {
	l := s.channelLock(channelID)
	l.Lock()
	defer l.Unlock()

	meeting, err := s.ActiveMeeting(ctx, channelID)
	if err != nil {
		return false, err
	}
	if meeting == nil {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (meeting_id, user_id, content, timestamp)
		VALUES (?, ?, ?, ?)
	`, meeting.ID, userID, content, now.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record message: %w", err)
	}

	words := len(strings.Fields(content))
	// Crude speaking-time proxy: a tenth of a second per character.
	speaking := float64(utf8.RuneCountInString(content)) * 0.1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO speaker_stats (meeting_id, user_id, message_count, total_words, speaking_time_seconds)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (meeting_id, user_id) DO UPDATE SET
			message_count = message_count + 1,
			total_words = total_words + excluded.total_words,
			speaking_time_seconds = speaking_time_seconds + excluded.speaking_time_seconds
	`, meeting.ID, userID, words, speaking)
	if err != nil {
		return false, fmt.Errorf("failed to update speaker stats: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit message: %w", err)
	}
	return true, nil
}

// AddActionItem records a task against the channel's active meeting.
func (s *Store) AddActionItem(ctx context.Context, channelID, assignedTo, task string, now time.Time) (*ActionItem, error) {
	l := s.channelLock(channelID)
	l.Lock()
	defer l.Unlock()

	meeting, err := s.ActiveMeeting(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if meeting == nil {
		return nil, ErrNoActiveMeeting
	}

	item := &ActionItem{
		MeetingID:  meeting.ID,
		AssignedTo: assignedTo,
		Task:       task,
		CreatedAt:  now.UTC(),
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO action_items (meeting_id, assigned_to, task, created_at, completed)
		VALUES (?, ?, ?, ?, 0)
		RETURNING id
	`, item.MeetingID, item.AssignedTo, item.Task, item.CreatedAt).Scan(&item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to add action item: %w", err)
	}
	return item, nil
}

// ListActionItems returns the active meeting's action items in creation
// order. With pendingOnly set, completed items are excluded.
func (s *Store) ListActionItems(ctx context.Context, channelID string, pendingOnly bool) ([]*ActionItem, error) {
	meeting, err := s.ActiveMeeting(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if meeting == nil {
		return nil, ErrNoActiveMeeting
	}
	return s.actionItemsForMeeting(ctx, meeting.ID, pendingOnly)
}

// ActionItemsForMeeting returns a meeting's action items in creation
// order, completed ones included. Used by export.
func (s *Store) ActionItemsForMeeting(ctx context.Context, meetingID int64) ([]*ActionItem, error) {
	return s.actionItemsForMeeting(ctx, meetingID, false)
}

func (s *Store) actionItemsForMeeting(ctx context.Context, meetingID int64, pendingOnly bool) ([]*ActionItem, error) {
	query := `
		SELECT id, meeting_id, assigned_to, task, created_at, completed
		FROM action_items
		WHERE meeting_id = ?
	`
	if pendingOnly {
		query += " AND completed = 0"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list action items: %w", err)
	}
	defer rows.Close()

	items := make([]*ActionItem, 0)
	for rows.Next() {
		item := &ActionItem{}
		if err := rows.Scan(&item.ID, &item.MeetingID, &item.AssignedTo, &item.Task, &item.CreatedAt, &item.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan action item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action items: %w", err)
	}
	return items, nil
}

// ActiveMeeting returns the channel's active meeting, or nil.
func (s *Store) ActiveMeeting(ctx context.Context, channelID string) (*Meeting, error) {
	meeting := &Meeting{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, chair_id, start_time, end_time, is_active
		FROM meetings
		WHERE channel_id = ? AND is_active = 1
	`, channelID).Scan(&meeting.ID, &meeting.ChannelID, &meeting.ChairID, &meeting.StartTime, &meeting.EndTime, &meeting.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active meeting: %w", err)
	}
	return meeting, nil
}

// LatestMeeting returns the channel's most recently ended meeting, or
// the active one when nothing has ended yet. Nil when the channel has
// never held a meeting. This is the export target, which deliberately
// need not be the active meeting.
func (s *Store) LatestMeeting(ctx context.Context, channelID string) (*Meeting, error) {
	meeting := &Meeting{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, channel_id, chair_id, start_time, end_time, is_active
		FROM meetings
		WHERE channel_id = ?
		ORDER BY (end_time IS NULL) ASC, end_time DESC, id DESC
		LIMIT 1
	`, channelID).Scan(&meeting.ID, &meeting.ChannelID, &meeting.ChairID, &meeting.StartTime, &meeting.EndTime, &meeting.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest meeting: %w", err)
	}
	return meeting, nil
}

// Messages returns a meeting's recorded messages in timestamp order.
func (s *Store) Messages(ctx context.Context, meetingID int64) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, meeting_id, user_id, content, timestamp
		FROM messages
		WHERE meeting_id = ?
		ORDER BY timestamp ASC, id ASC
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		msg := &Message{}
		if err := rows.Scan(&msg.ID, &msg.MeetingID, &msg.UserID, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// SpeakerStats returns per-speaker counters for the channel's active
// meeting, in first-spoke order.
func (s *Store) SpeakerStats(ctx context.Context, channelID string) ([]*SpeakerStat, error) {
	meeting, err := s.ActiveMeeting(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if meeting == nil {
		return nil, ErrNoActiveMeeting
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT meeting_id, user_id, message_count, total_words, speaking_time_seconds
		FROM speaker_stats
		WHERE meeting_id = ?
		ORDER BY id ASC
	`, meeting.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list speaker stats: %w", err)
	}
	defer rows.Close()

	stats := make([]*SpeakerStat, 0)
	for rows.Next() {
		st := &SpeakerStat{}
		if err := rows.Scan(&st.MeetingID, &st.UserID, &st.MessageCount, &st.TotalWords, &st.SpeakingTimeSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan speaker stats: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating speaker stats: %w", err)
	}
	return stats, nil
}

// Status computes the status snapshot for the channel's active meeting.
func (s *Store) Status(ctx context.Context, channelID string, now time.Time) (*MeetingStatus, error) {
	meeting, err := s.ActiveMeeting(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if meeting == nil {
		return nil, ErrNoActiveMeeting
	}

	status := &MeetingStatus{
		Meeting:  *meeting,
		Duration: now.UTC().Sub(meeting.StartTime),
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE meeting_id = ?`, meeting.ID).Scan(&status.MessageCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM speaker_stats WHERE meeting_id = ?`, meeting.ID).Scan(&status.ParticipantCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count participants: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM action_items WHERE meeting_id = ?`, meeting.ID).Scan(&status.ActionItemCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count action items: %w", err)
	}

	status.CoChairIDs, err = s.coChairs(ctx, meeting.ID)
	if err != nil {
		return nil, err
	}

	return status, nil
}

func (s *Store) coChairs(ctx context.Context, meetingID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM co_chairs WHERE meeting_id = ? ORDER BY id ASC
	`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list co-chairs: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan co-chair: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating co-chairs: %w", err)
	}
	return ids, nil
}
