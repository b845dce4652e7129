// Package bot routes inbound chat events through parsing,
// authorization and the stores, and turns the outcome into response
// directives. It is the only place that decides what gets said and
// whether it is said publicly or privately.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meetbot/internal/command"
	"github.com/meetbot/internal/export"
	"github.com/meetbot/internal/karma"
	"github.com/meetbot/internal/store"
)

// Event is one inbound text line with its origin. Slash commands and
// plain channel messages both collapse into this shape.
type Event struct {
	Text      string
	ActorID   string
	ChannelID string
}

// Target says where a directive is delivered.
type Target int

const (
	// TargetPublic posts to the whole channel.
	TargetPublic Target = iota
	// TargetPrivate posts ephemerally to the invoking actor only.
	TargetPrivate
	// TargetUpload uploads a document to the channel.
	TargetUpload
)

// Directive is one outbound action for the messaging collaborator.
type Directive struct {
	Target   Target
	Text     string
	Filename string
	Content  []byte
	Caption  string
}

func public(text string) Directive  { return Directive{Target: TargetPublic, Text: text} }
func private(text string) Directive { return Directive{Target: TargetPrivate, Text: text} }

const genericFailure = "Something went wrong while processing your command. Please try again."

// Dispatcher executes parsed commands against the session store and
// karma ledger. Name resolution and posting happen outside any store
// transaction; a failed lookup never rolls back a committed mutation.
type Dispatcher struct {
	store            *store.Store
	ledger           *karma.Ledger
	resolver         export.NameResolver
	now              func() time.Time
	leaderboardLimit int
}

// NewDispatcher wires the dispatcher. leaderboardLimit caps karma list
// output; zero means the default of ten.
func NewDispatcher(st *store.Store, ledger *karma.Ledger, resolver export.NameResolver, leaderboardLimit int) *Dispatcher {
	if leaderboardLimit <= 0 {
		leaderboardLimit = 10
	}
	return &Dispatcher{
		store:            st,
		ledger:           ledger,
		resolver:         resolver,
		now:              time.Now,
		leaderboardLimit: leaderboardLimit,
	}
}

// SetClock overrides the dispatcher's clock. Tests only.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Handle processes one inbound event and returns the directives to
// deliver. Failures never escape as errors: parse problems and denials
// become private hints, store failures become a private generic
// apology. Denials and errors are never posted publicly.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) []Directive {
	reqID := uuid.NewString()

	cmd, err := command.Parse(ev.Text)
	if err != nil {
		var usage *command.UsageError
		if errors.As(err, &usage) {
			return []Directive{private(usage.Hint)}
		}
		log.Error().Str("request_id", reqID).Err(err).Msg("Unexpected parse failure")
		return []Directive{private(genericFailure)}
	}

	if cmd.Kind != command.KindPlainMessage {
		log.Debug().
			Str("request_id", reqID).
			Str("command", cmd.Kind.String()).
			Str("channel_id", ev.ChannelID).
			Str("actor_id", ev.ActorID).
			Msg("Dispatching command")
	}

	directives, err := d.dispatch(ctx, cmd, ev)
	if err != nil {
		return []Directive{private(d.describeFailure(reqID, cmd, err))}
	}
	return directives
}

// describeFailure maps an error onto a terse private reply and logs
// anything unexpected. Internal error text never reaches the user.
func (d *Dispatcher) describeFailure(reqID string, cmd *command.Command, err error) string {
	var denied *DeniedError
	switch {
	case errors.As(err, &denied):
		return denied.Reason
	case errors.Is(err, store.ErrAlreadyActive):
		return "There's already an active meeting in this channel!"
	case errors.Is(err, store.ErrNoActiveMeeting):
		return "No active meeting found in this channel!"
	}
	log.Error().
		Str("request_id", reqID).
		Str("command", cmd.Kind.String()).
		Err(err).
		Msg("Command failed")
	return genericFailure
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *command.Command, ev Event) ([]Directive, error) {
	meeting, err := d.store.ActiveMeeting(ctx, ev.ChannelID)
	if err != nil {
		return nil, err
	}

	if err := authorize(cmd, meeting, ev.ActorID); err != nil {
		return nil, err
	}

	switch cmd.Kind {
	case command.KindPlainMessage:
		return d.recordMessage(ctx, ev)
	case command.KindMeetingStart:
		return d.startMeeting(ctx, ev)
	case command.KindMeetingEnd:
		return d.endMeeting(ctx, ev)
	case command.KindMeetingStatus:
		return d.meetingStatus(ctx, ev)
	case command.KindChairChange:
		return d.changeChair(ctx, cmd, ev)
	case command.KindCoChairAdd:
		return d.addCoChair(ctx, cmd, ev)
	case command.KindActionAdd:
		return d.addActionItem(ctx, cmd, ev)
	case command.KindActionList:
		return d.listActionItems(ctx, ev)
	case command.KindKarmaAdjust:
		return d.adjustKarma(ctx, cmd)
	case command.KindKarmaList:
		return d.karmaLeaderboard(ctx)
	case command.KindStats:
		return d.speakerStats(ctx, ev)
	case command.KindExport:
		return d.exportMeeting(ctx, ev)
	case command.KindHelp:
		return []Directive{public(helpText)}, nil
	}

	return nil, fmt.Errorf("unhandled command kind %v", cmd.Kind)
}

func (d *Dispatcher) recordMessage(ctx context.Context, ev Event) ([]Directive, error) {
	recorded, err := d.store.RecordMessage(ctx, ev.ChannelID, ev.ActorID, ev.Text, d.now())
	if err != nil {
		return nil, err
	}
	if recorded {
		log.Debug().Str("channel_id", ev.ChannelID).Msg("Message recorded")
	}
	// Chatter never triggers a reply, recorded or not.
	return nil, nil
}

func (d *Dispatcher) startMeeting(ctx context.Context, ev Event) ([]Directive, error) {
	meeting, err := d.store.StartMeeting(ctx, ev.ChannelID, ev.ActorID, d.now())
	if err != nil {
		return nil, err
	}

	channelName := d.resolver.ChannelName(ctx, ev.ChannelID)
	chairName := d.resolver.UserName(ctx, ev.ActorID)
	announcement := formatStartAnnouncement(channelName, chairName, meeting.StartTime.Format("03:04 PM"))

	return []Directive{
		public(announcement),
		private("✅ Meeting started successfully!"),
	}, nil
}

func (d *Dispatcher) endMeeting(ctx context.Context, ev Event) ([]Directive, error) {
	if _, err := d.store.EndMeeting(ctx, ev.ChannelID, d.now()); err != nil {
		return nil, err
	}
	return []Directive{
		public("Meeting ended! :checkered_flag:\nUse `!export` to get the meeting minutes."),
	}, nil
}

func (d *Dispatcher) meetingStatus(ctx context.Context, ev Event) ([]Directive, error) {
	status, err := d.store.Status(ctx, ev.ChannelID, d.now())
	if err != nil {
		return nil, err
	}

	chairName := d.resolver.UserName(ctx, status.Meeting.ChairID)
	coChairNames := make([]string, 0, len(status.CoChairIDs))
	for _, id := range status.CoChairIDs {
		coChairNames = append(coChairNames, d.resolver.UserName(ctx, id))
	}

	return []Directive{public(formatStatus(status, chairName, coChairNames))}, nil
}

func (d *Dispatcher) changeChair(ctx context.Context, cmd *command.Command, ev Event) ([]Directive, error) {
	if err := d.store.ChangeChair(ctx, ev.ChannelID, cmd.TargetID); err != nil {
		return nil, err
	}
	name := d.resolver.UserName(ctx, cmd.TargetID)
	return []Directive{
		public(fmt.Sprintf("👑 %s has been assigned as the meeting chair!", name)),
	}, nil
}

func (d *Dispatcher) addCoChair(ctx context.Context, cmd *command.Command, ev Event) ([]Directive, error) {
	if err := d.store.AddCoChair(ctx, ev.ChannelID, cmd.TargetID); err != nil {
		return nil, err
	}
	name := d.resolver.UserName(ctx, cmd.TargetID)
	return []Directive{
		public(fmt.Sprintf("👑 %s has been assigned as the meeting co-chair!", name)),
	}, nil
}

func (d *Dispatcher) addActionItem(ctx context.Context, cmd *command.Command, ev Event) ([]Directive, error) {
	assignee := cmd.Assignee
	if cmd.AssigneeIsMention {
		// Store the display name like the bot always has; the raw id
		// remains the fallback when the lookup fails.
		assignee = d.resolver.UserName(ctx, cmd.TargetID)
	}

	item, err := d.store.AddActionItem(ctx, ev.ChannelID, assignee, cmd.Task, d.now())
	if err != nil {
		return nil, err
	}

	return []Directive{
		public(fmt.Sprintf("✅ Action item assigned to %s: %s", item.AssignedTo, item.Task)),
	}, nil
}

func (d *Dispatcher) listActionItems(ctx context.Context, ev Event) ([]Directive, error) {
	items, err := d.store.ListActionItems(ctx, ev.ChannelID, true)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []Directive{public("No pending action items for this meeting! 🎉")}, nil
	}
	return []Directive{public(formatActionItems(items))}, nil
}

func (d *Dispatcher) adjustKarma(ctx context.Context, cmd *command.Command) ([]Directive, error) {
	points, err := d.ledger.Adjust(ctx, cmd.TargetID, cmd.Delta, d.now())
	if err != nil {
		return nil, err
	}

	change := "increased"
	if cmd.Delta < 0 {
		change = "decreased"
	}
	name := d.resolver.UserName(ctx, cmd.TargetID)
	return []Directive{
		public(fmt.Sprintf("🎭 %s's karma has %s to %d points!", name, change, points)),
	}, nil
}

func (d *Dispatcher) karmaLeaderboard(ctx context.Context) ([]Directive, error) {
	entries, err := d.ledger.Leaderboard(ctx, d.leaderboardLimit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []Directive{public("No karma points recorded yet! 🌱")}, nil
	}

	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = d.resolver.UserName(ctx, entry.UserID)
	}
	return []Directive{public(formatLeaderboard(entries, names))}, nil
}

func (d *Dispatcher) speakerStats(ctx context.Context, ev Event) ([]Directive, error) {
	stats, err := d.store.SpeakerStats(ctx, ev.ChannelID)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return []Directive{public("No participation statistics available for this meeting yet.")}, nil
	}

	names := make([]string, len(stats))
	for i, st := range stats {
		names[i] = d.resolver.UserName(ctx, st.UserID)
	}
	return []Directive{public(formatSpeakerStats(stats, names))}, nil
}

func (d *Dispatcher) exportMeeting(ctx context.Context, ev Event) ([]Directive, error) {
	meeting, err := d.store.LatestMeeting(ctx, ev.ChannelID)
	if err != nil {
		return nil, err
	}
	if meeting == nil {
		return []Directive{private("❌ No meeting found in this channel!")}, nil
	}

	messages, err := d.store.Messages(ctx, meeting.ID)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return []Directive{private("❌ No messages found for this meeting!")}, nil
	}

	actions, err := d.store.ActionItemsForMeeting(ctx, meeting.ID)
	if err != nil {
		return nil, err
	}

	document, err := export.Render(ctx, meeting, messages, actions, d.resolver)
	if err != nil {
		return nil, err
	}

	return []Directive{{
		Target:   TargetUpload,
		Filename: export.Filename(ev.ChannelID, d.now()),
		Content:  document,
		Caption:  "📑 Here's your meeting export!",
	}}, nil
}
