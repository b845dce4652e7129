package bot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetbot/internal/bot"
	"github.com/meetbot/internal/karma"
	"github.com/meetbot/internal/store"
	"github.com/meetbot/internal/testutil"
)

var fixedTime = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

// mapResolver resolves names from fixed maps, falling back to the raw
// id the way the live client does.
type mapResolver struct {
	users    map[string]string
	channels map[string]string
}

func (r *mapResolver) UserName(_ context.Context, id string) string {
	if name, ok := r.users[id]; ok {
		return name
	}
	return id
}

func (r *mapResolver) ChannelName(_ context.Context, id string) string {
	if name, ok := r.channels[id]; ok {
		return name
	}
	return id
}

type fixture struct {
	dispatcher *bot.Dispatcher
	store      *store.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	st := store.NewStore(db)
	resolver := &mapResolver{
		users:    map[string]string{"U1": "alice", "U2": "bob", "U3": "carol"},
		channels: map[string]string{"C1": "standup"},
	}

	d := bot.NewDispatcher(st, karma.NewLedger(db), resolver, 10)
	d.SetClock(func() time.Time { return fixedTime })

	return &fixture{dispatcher: d, store: st}
}

func (f *fixture) handle(text, actorID string) []bot.Directive {
	return f.dispatcher.Handle(context.Background(), bot.Event{
		Text:      text,
		ActorID:   actorID,
		ChannelID: "C1",
	})
}

func requirePrivate(t *testing.T, directives []bot.Directive, want string) {
	t.Helper()
	require.Len(t, directives, 1)
	assert.Equal(t, bot.TargetPrivate, directives[0].Target)
	assert.Equal(t, want, directives[0].Text)
}

func TestStartMeeting(t *testing.T) {
	f := newFixture(t)

	directives := f.handle("!meeting start", "U1")
	require.Len(t, directives, 2)

	assert.Equal(t, bot.TargetPublic, directives[0].Target)
	assert.Contains(t, directives[0].Text, "New Meeting Started!")
	assert.Contains(t, directives[0].Text, "#standup")
	assert.Contains(t, directives[0].Text, "alice")

	assert.Equal(t, bot.TargetPrivate, directives[1].Target)
	assert.Equal(t, "✅ Meeting started successfully!", directives[1].Text)
}

func TestStartMeetingTwiceIsDeniedPrivately(t *testing.T) {
	f := newFixture(t)
	f.handle("!meeting start", "U1")

	directives := f.handle("!meeting start", "U2")
	requirePrivate(t, directives, "There's already an active meeting in this channel!")
}

func TestEndMeeting(t *testing.T) {
	f := newFixture(t)
	f.handle("!meeting start", "U1")

	directives := f.handle("!meeting end", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, bot.TargetPublic, directives[0].Target)
	assert.Contains(t, directives[0].Text, "Meeting ended!")
}

func TestMeetingStatus(t *testing.T) {
	f := newFixture(t)
	f.handle("!meeting start", "U1")
	f.handle("hello from the meeting", "U2")
	f.handle("!cochair <@U3>", "U1")

	directives := f.handle("!meeting status", "U2")
	require.Len(t, directives, 1)
	assert.Equal(t, bot.TargetPublic, directives[0].Target)
	assert.Contains(t, directives[0].Text, "*Chair:* alice")
	assert.Contains(t, directives[0].Text, "*Co-chairs:* carol")
	assert.Contains(t, directives[0].Text, "*Messages:* 1")
}

func TestChairChange(t *testing.T) {
	f := newFixture(t)
	f.handle("!meeting start", "U1")

	directives := f.handle("!chair <@U2>", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, bot.TargetPublic, directives[0].Target)
	assert.Equal(t, "👑 bob has been assigned as the meeting chair!", directives[0].Text)

	// Privilege moved with the chair.
	requirePrivate(t, f.handle("!meeting end", "U1"), "Only the meeting chair can end the meeting!")

	directives = f.handle("!meeting end", "U2")
	require.Len(t, directives, 1)
	assert.Equal(t, bot.TargetPublic, directives[0].Target)
}

func TestCoChairCarriesNoPrivilege(t *testing.T) {
	f := newFixture(t)
	f.handle("!meeting start", "U1")

	directives := f.handle("!cochair <@U2>", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, "👑 bob has been assigned as the meeting co-chair!", directives[0].Text)

	requirePrivate(t, f.handle("!meeting end", "U2"), "Only the meeting chair can end the meeting!")
	requirePrivate(t, f.handle("!chair <@U3>", "U2"), "Only the current chair can change the chair!")
}

func TestActionItems(t *testing.T) {
	f := newFixture(t)

	requirePrivate(t, f.handle("!action @dave file the report", "U1"), "No active meeting found in this channel!")

	f.handle("!meeting start", "U1")

	directives := f.handle("!action list", "U2")
	require.Len(t, directives, 1)
	assert.Equal(t, bot.TargetPublic, directives[0].Target)
	assert.Contains(t, directives[0].Text, "No pending action items")

	directives = f.handle("!action @dave file the report", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, "✅ Action item assigned to dave: file the report", directives[0].Text)

	// A mention assignee resolves to the display name.
	directives = f.handle("!action <@U2> review the doc", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, "✅ Action item assigned to bob: review the doc", directives[0].Text)

	directives = f.handle("!action list", "U2")
	require.Len(t, directives, 1)
	assert.Contains(t, directives[0].Text, "1. *dave*: file the report")
	assert.Contains(t, directives[0].Text, "2. *bob*: review the doc")
}

func TestKarma(t *testing.T) {
	f := newFixture(t)

	requirePrivate(t, f.handle("!karma <@U1>++", "U1"), "Nice try! You can't modify your own karma 😉")

	directives := f.handle("!karma list", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, "No karma points recorded yet! 🌱", directives[0].Text)

	directives = f.handle("<@U2>++", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, bot.TargetPublic, directives[0].Target)
	assert.Equal(t, "🎭 bob's karma has increased to 1 points!", directives[0].Text)

	// Trailing text after the ++ does not demote the command to chatter.
	directives = f.handle("<@U2>++ thanks for the help", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, "🎭 bob's karma has increased to 2 points!", directives[0].Text)

	directives = f.handle("!karma <@U2> --", "U3")
	require.Len(t, directives, 1)
	assert.Equal(t, "🎭 bob's karma has decreased to 1 points!", directives[0].Text)

	directives = f.handle("!karma list", "U1")
	require.Len(t, directives, 1)
	assert.Contains(t, directives[0].Text, "Karma Leaderboard")
	assert.Contains(t, directives[0].Text, "1. bob: 1 points")
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.handle("!meeting start", "U1")

	directives := f.handle("!stats", "U1")
	require.Len(t, directives, 1)
	assert.Contains(t, directives[0].Text, "No participation statistics")

	f.handle("a longer remark with several words", "U2")

	directives = f.handle("!stats", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, bot.TargetPublic, directives[0].Target)
	assert.Contains(t, directives[0].Text, "*bob*")
	assert.Contains(t, directives[0].Text, "Messages: 1")
	assert.Contains(t, directives[0].Text, "Words: 6")
}

func TestHelp(t *testing.T) {
	f := newFixture(t)

	directives := f.handle("!help", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, bot.TargetPublic, directives[0].Target)
	assert.Contains(t, directives[0].Text, "MeetBot Available Commands")
	// The reference card is kept verbatim, documented quirks included.
	assert.Contains(t, directives[0].Text, "`!action done ID` - Mark an action item as completed")
	assert.Contains(t, directives[0].Text, "Only the chair or co-chair can end meetings")
}

func TestPlainMessageRecordedSilently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Outside a meeting chatter is dropped without a reply.
	assert.Empty(t, f.handle("just chatting", "U1"))

	f.handle("!meeting start", "U1")
	assert.Empty(t, f.handle("first remark", "U2"))

	meeting, err := f.store.ActiveMeeting(ctx, "C1")
	require.NoError(t, err)
	require.NotNil(t, meeting)

	msgs, err := f.store.Messages(ctx, meeting.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "first remark", msgs[0].Content)
	assert.Equal(t, "U2", msgs[0].UserID)
}

func TestUsageHintIsPrivate(t *testing.T) {
	f := newFixture(t)
	requirePrivate(t, f.handle("!meeting", "U1"), "Please provide a subcommand (start, end, status)")
	requirePrivate(t, f.handle("!karma bogus", "U1"), "Invalid karma command format. Use: !karma @user++ or !karma @user--")
}

func TestExport(t *testing.T) {
	f := newFixture(t)

	requirePrivate(t, f.handle("!export", "U1"), "❌ No meeting found in this channel!")

	f.handle("!meeting start", "U1")
	requirePrivate(t, f.handle("!export", "U1"), "❌ No messages found for this meeting!")

	f.handle("we decided to ship on friday", "U2")
	f.handle("!action @bob send the summary", "U1")
	f.handle("!meeting end", "U1")

	directives := f.handle("!export", "U1")
	require.Len(t, directives, 1)
	assert.Equal(t, bot.TargetUpload, directives[0].Target)
	assert.Equal(t, "meeting_export_C1_20240314_100000.html", directives[0].Filename)
	assert.Equal(t, "📑 Here's your meeting export!", directives[0].Caption)

	html := string(directives[0].Content)
	assert.Contains(t, html, "we decided to ship on friday")
	assert.Contains(t, html, "send the summary")
	assert.Contains(t, html, "bob")
}

func TestDenialsAreNeverPublic(t *testing.T) {
	f := newFixture(t)

	// No meeting: everything that needs one is denied.
	denied := []string{
		"!meeting end",
		"!meeting status",
		"!chair <@U2>",
		"!cochair <@U2>",
		"!action @dave task",
		"!action list",
		"!stats",
	}
	for _, text := range denied {
		for _, directive := range f.handle(text, "U1") {
			assert.Equal(t, bot.TargetPrivate, directive.Target, "denial for %q leaked publicly", text)
		}
	}

	f.handle("!meeting start", "U1")

	// Active meeting: duplicate start, privilege checks and self-karma,
	// all invoked by the non-chair actor U2.
	denied = []string{
		"!meeting start",
		"!meeting end",
		"!chair <@U3>",
		"!cochair <@U3>",
		"!karma <@U2>++",
	}
	for _, text := range denied {
		directives := f.handle(text, "U2")
		require.NotEmpty(t, directives, "denial for %q produced no reply", text)
		for _, directive := range directives {
			assert.Equal(t, bot.TargetPrivate, directive.Target, "denial for %q leaked publicly", text)
		}
	}
}
