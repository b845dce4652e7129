// Package export renders a finished meeting transcript into a
// self-contained HTML document. Rendering is pure: given the same
// meeting data and the same resolver answers, the output is identical.
package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/meetbot/internal/store"
)

// NameResolver maps platform ids to display names. Implementations
// must fall back to the raw id on lookup failure; Render never fails
// because of a cosmetic lookup.
type NameResolver interface {
	UserName(ctx context.Context, userID string) string
	ChannelName(ctx context.Context, channelID string) string
}

type documentData struct {
	ChannelName string
	StartTime   string
	HasEnd      bool
	EndTime     string
	Duration    string
	Messages    []messageRow
	Actions     []actionRow
}

type messageRow struct {
	Speaker string
	Content string
	Clock   string
}

type actionRow struct {
	Assignee  string
	Task      string
	Completed bool
}

const timestampLayout = "January 02, 2006 at 03:04 PM"
const clockLayout = "03:04 PM"

// Filename returns the deterministic artifact name for an export
// requested in the given channel at the given instant.
func Filename(channelID string, now time.Time) string {
	return fmt.Sprintf("meeting_export_%s_%s.html", channelID, now.UTC().Format("20060102_150405"))
}

// Render produces the transcript document for a meeting. Messages must
// already be in timestamp order and actions in creation order; Render
// does not reorder.
func Render(ctx context.Context, meeting *store.Meeting, messages []*store.Message, actions []*store.ActionItem, resolver NameResolver) ([]byte, error) {
	data := documentData{
		ChannelName: resolver.ChannelName(ctx, meeting.ChannelID),
		StartTime:   meeting.StartTime.Format(timestampLayout),
	}

	if meeting.EndTime.Valid {
		data.HasEnd = true
		data.EndTime = meeting.EndTime.Time.Format(timestampLayout)
		data.Duration = formatDuration(meeting.EndTime.Time.Sub(meeting.StartTime))
	}

	for _, msg := range messages {
		data.Messages = append(data.Messages, messageRow{
			Speaker: resolver.UserName(ctx, msg.UserID),
			Content: msg.Content,
			Clock:   msg.Timestamp.Format(clockLayout),
		})
	}

	for _, action := range actions {
		data.Actions = append(data.Actions, actionRow{
			Assignee:  resolver.UserName(ctx, action.AssignedTo),
			Task:      action.Task,
			Completed: action.Completed,
		})
	}

	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render export: %w", err)
	}
	return buf.Bytes(), nil
}

func formatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
}

var documentTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Meeting Export</title>
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.0/dist/css/bootstrap.min.css" rel="stylesheet">
    <style>
        body { padding: 20px; background-color: #f8f9fa; }
        .meeting-header { background-color: #fff; border-radius: 10px; padding: 20px; margin-bottom: 20px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .meeting-title { color: #2c3e50; margin-bottom: 20px; }
        .meeting-info { color: #6c757d; }
        .section { background-color: #fff; border-radius: 10px; padding: 20px; margin-bottom: 20px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .section-title { color: #2c3e50; margin-bottom: 15px; border-bottom: 2px solid #e9ecef; padding-bottom: 10px; }
        .message-list { list-style: none; padding: 0; }
        .message-item { padding: 10px; border-bottom: 1px solid #e9ecef; }
        .message-item:last-child { border-bottom: none; }
        .message-user { font-weight: bold; color: #2c3e50; }
        .message-content { color: #495057; }
        .action-list { list-style: none; padding: 0; }
        .action-item { padding: 10px; border-bottom: 1px solid #e9ecef; }
        .action-item:last-child { border-bottom: none; }
        .action-user { font-weight: bold; color: #2c3e50; }
        .action-task { color: #495057; }
        .action-completed { color: #28a745; font-style: italic; }
        .timestamp { color: #6c757d; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="container">
        <div class="meeting-header">
            <h1 class="meeting-title">Meeting Export</h1>
            <div class="meeting-info">
                <p><strong>Channel:</strong> <span class="badge bg-primary">#{{.ChannelName}}</span></p>
                <p><strong>Start Time:</strong> {{.StartTime}}</p>
{{- if .HasEnd}}
                <p><strong>End Time:</strong> {{.EndTime}}</p>
                <p><strong>Duration:</strong> {{.Duration}}</p>
{{- end}}
            </div>
        </div>

        <div class="section">
            <h2 class="section-title">Messages</h2>
            <ul class="message-list">
{{- range .Messages}}
                <li class="message-item">
                    <div class="d-flex justify-content-between align-items-start">
                        <div>
                            <span class="message-user">{{.Speaker}}</span>
                            <span class="message-content">{{.Content}}</span>
                        </div>
                        <span class="timestamp">{{.Clock}}</span>
                    </div>
                </li>
{{- end}}
            </ul>
        </div>

        <div class="section">
            <h2 class="section-title">Action Items</h2>
            <ul class="action-list">
{{- range .Actions}}
                <li class="action-item">
                    <div class="d-flex justify-content-between align-items-start">
                        <div>
                            <span class="action-user">{{.Assignee}}</span>
                            <span class="action-task{{if .Completed}} action-completed{{end}}">{{.Task}}{{if .Completed}} (Completed){{end}}</span>
                        </div>
                    </div>
                </li>
{{- end}}
            </ul>
        </div>
    </div>
    <script src="https://cdn.jsdelivr.net/npm/bootstrap@5.3.0/dist/js/bootstrap.bundle.min.js"></script>
</body>
</html>
`))
