package bot

import (
	"fmt"
	"strings"

	"github.com/meetbot/internal/karma"
	"github.com/meetbot/internal/store"
)

// helpText advertises the bot's commands. Kept verbatim from the bot's
// original reference card, including the `!action done ID` line, which
// remains documented-but-absent pending a product decision.
const helpText = "🤖 *MeetBot Available Commands*\n\n" +
	"*Meeting Management:*\n" +
	"• `!meeting start` - Start a new meeting in the channel\n" +
	"• `!meeting end` - End the current meeting\n" +
	"• `!meeting status` - Show the current meeting status\n\n" +
	"*Action Items:*\n" +
	"• `!action user task` - Assign an action item to a user (with or without @)\n" +
	"• `!action list` - List all action items for the current meeting\n" +
	"• `!action done ID` - Mark an action item as completed\n\n" +
	"*Roles and Permissions:*\n" +
	"• `!chair @user` - Assign someone as the meeting chair\n" +
	"• `!cochair @user` - Assign someone as meeting co-chair\n\n" +
	"*Karma System:*\n" +
	"• `!karma @user++` or `@user++` - Give karma to a user\n" +
	"• `!karma @user--` or `@user--` - Remove karma from a user\n" +
	"• `!karma list` - Show karma leaderboard\n\n" +
	"*Other Commands:*\n" +
	"• `!export` - Export the current meeting to HTML\n" +
	"• `!stats` - Show meeting participation statistics\n" +
	"• `!help` - Show this help message\n\n" +
	"💡 *Tips:*\n" +
	"• The bot automatically records all messages during an active meeting\n" +
	"• Only the chair or co-chair can end meetings\n" +
	"• Action items are saved and can be reviewed later\n" +
	"• Meeting exports include all messages and action items"

func formatStartAnnouncement(channelName, chairName, startClock string) string {
	return "🎯 *New Meeting Started!*\n\n" +
		fmt.Sprintf("• *Channel:* #%s\n", channelName) +
		fmt.Sprintf("• *Chair:* %s\n", chairName) +
		fmt.Sprintf("• *Start Time:* %s\n", startClock) +
		"\n" +
		"📝 *Available Commands:*\n" +
		"• `!meeting status` - Check meeting status\n" +
		"• `!action @user task` - Assign action items\n" +
		"• `!meeting end` - End the meeting\n" +
		"\n" +
		"✨ Meeting has started! All messages will now be recorded."
}

func formatStatus(status *store.MeetingStatus, chairName string, coChairNames []string) string {
	var b strings.Builder
	b.WriteString("📊 *Meeting Status*\n\n")
	fmt.Fprintf(&b, "• *Duration:* %d minutes\n", int(status.Duration.Minutes()))
	fmt.Fprintf(&b, "• *Chair:* %s\n", chairName)
	if len(coChairNames) > 0 {
		fmt.Fprintf(&b, "• *Co-chairs:* %s\n", strings.Join(coChairNames, ", "))
	}
	fmt.Fprintf(&b, "• *Messages:* %d\n", status.MessageCount)
	fmt.Fprintf(&b, "• *Participants:* %d\n", status.ParticipantCount)
	fmt.Fprintf(&b, "• *Action Items:* %d\n\n", status.ActionItemCount)
	b.WriteString("Use `!meeting end` to end the meeting.")
	return b.String()
}

func formatActionItems(items []*store.ActionItem) string {
	var b strings.Builder
	b.WriteString("📋 *Current Action Items*\n\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. *%s*: %s\n", i+1, item.AssignedTo, item.Task)
	}
	return b.String()
}

func formatLeaderboard(entries []*karma.Entry, names []string) string {
	var b strings.Builder
	b.WriteString("🏆 *Karma Leaderboard*\n\n")
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. %s: %d points\n", i+1, names[i], entry.Points)
	}
	return b.String()
}

func formatSpeakerStats(stats []*store.SpeakerStat, names []string) string {
	var b strings.Builder
	b.WriteString("📊 *Meeting Participation Statistics*\n\n")
	for i, st := range stats {
		fmt.Fprintf(&b, "*%s*\n", names[i])
		fmt.Fprintf(&b, "• Messages: %d\n", st.MessageCount)
		fmt.Fprintf(&b, "• Words: %d\n", st.TotalWords)
		fmt.Fprintf(&b, "• Speaking time: %ds\n\n", int(st.SpeakingTimeSeconds))
	}
	return strings.TrimRight(b.String(), "\n")
}
