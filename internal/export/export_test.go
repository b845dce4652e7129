package export_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetbot/internal/export"
	"github.com/meetbot/internal/store"
)

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

var (
	start = time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 3, 14, 11, 5, 30, 0, time.UTC)
)

func sampleMeeting() *store.Meeting {
	return &store.Meeting{
		ID:        1,
		ChannelID: "C1",
		ChairID:   "U1",
		StartTime: start,
		EndTime:   sql.NullTime{Time: end, Valid: true},
	}
}

func sampleResolver() *mapResolver {
	return &mapResolver{
		users:    map[string]string{"U1": "alice", "U2": "bob"},
		channels: map[string]string{"C1": "standup"},
	}
}

func TestFilename(t *testing.T) {
	got := export.Filename("C1", time.Date(2024, 3, 14, 10, 30, 45, 0, time.UTC))
	assert.Equal(t, "meeting_export_C1_20240314_103045.html", got)

	// The timestamp is normalized to UTC regardless of the clock's zone.
	loc := time.FixedZone("UTC+2", 2*60*60)
	got = export.Filename("C1", time.Date(2024, 3, 14, 12, 30, 45, 0, loc))
	assert.Equal(t, "meeting_export_C1_20240314_103045.html", got)
}

func TestRender(t *testing.T) {
	messages := []*store.Message{
		{UserID: "U1", Content: "let's begin", Timestamp: start.Add(time.Minute)},
		{UserID: "U2", Content: "sounds good", Timestamp: start.Add(2 * time.Minute)},
	}
	actions := []*store.ActionItem{
		{AssignedTo: "bob", Task: "send the summary"},
		{AssignedTo: "alice", Task: "book the room", Completed: true},
	}

	got, err := export.Render(context.Background(), sampleMeeting(), messages, actions, sampleResolver())
	require.NoError(t, err)
	html := string(got)

	assert.Contains(t, html, "<span class=\"badge bg-primary\">#standup</span>")
	assert.Contains(t, html, "<strong>Start Time:</strong> March 14, 2024 at 10:00 AM")
	assert.Contains(t, html, "<strong>End Time:</strong> March 14, 2024 at 11:05 AM")
	assert.Contains(t, html, "<strong>Duration:</strong> 1h 5m 30s")

	assert.Contains(t, html, "let&#39;s begin")
	assert.Contains(t, html, "sounds good")
	assert.Contains(t, html, "10:01 AM")
	assert.Contains(t, html, "10:02 AM")

	assert.Contains(t, html, "send the summary")
	assert.Contains(t, html, "book the room (Completed)")
	assert.Contains(t, html, "action-completed")

	// Messages must appear in the given order.
	assert.Less(t, strings.Index(html, "let&#39;s begin"), strings.Index(html, "sounds good"))
}

func TestRenderIsDeterministic(t *testing.T) {
	messages := []*store.Message{
		{UserID: "U1", Content: "hello", Timestamp: start.Add(time.Minute)},
	}

	first, err := export.Render(context.Background(), sampleMeeting(), messages, nil, sampleResolver())
	require.NoError(t, err)
	second, err := export.Render(context.Background(), sampleMeeting(), messages, nil, sampleResolver())
	require.NoError(t, err)

	if diff := cmp.Diff(string(first), string(second)); diff != "" {
		t.Errorf("render output differs between runs (-first +second):\n%s", diff)
	}
}

func TestRenderActiveMeetingOmitsEnd(t *testing.T) {
	meeting := sampleMeeting()
	meeting.EndTime = sql.NullTime{}

	got, err := export.Render(context.Background(), meeting, nil, nil, sampleResolver())
	require.NoError(t, err)
	html := string(got)

	assert.Contains(t, html, "Start Time:")
	assert.NotContains(t, html, "End Time:")
	assert.NotContains(t, html, "Duration:")
}

func TestRenderFallsBackToRawIDs(t *testing.T) {
	resolver := &mapResolver{users: map[string]string{}, channels: map[string]string{}}
	messages := []*store.Message{
		{UserID: "U9", Content: "hi", Timestamp: start},
	}

	got, err := export.Render(context.Background(), sampleMeeting(), messages, nil, resolver)
	require.NoError(t, err)
	html := string(got)

	assert.Contains(t, html, "#C1")
	assert.Contains(t, html, "U9")
}

func TestRenderEscapesMarkup(t *testing.T) {
	messages := []*store.Message{
		{UserID: "U1", Content: "<script>alert(1)</script>", Timestamp: start},
	}

	got, err := export.Render(context.Background(), sampleMeeting(), messages, nil, sampleResolver())
	require.NoError(t, err)
	html := string(got)

	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "&lt;script&gt;")
}
