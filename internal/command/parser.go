// Package command turns raw inbound chat text into typed bot commands.
// Both the slash-command and plain-text entry points feed the same
// grammar, so every command shape is parsed exactly once.
package command

import (
	"regexp"
	"strings"
)

// Kind identifies the parsed command.
type Kind int

const (
	// KindPlainMessage is any text that is not a bot command. While a
	// meeting is active such messages are recorded as utterances.
	KindPlainMessage Kind = iota
	KindMeetingStart
	KindMeetingEnd
	KindMeetingStatus
	KindChairChange
	KindCoChairAdd
	KindActionAdd
	KindActionList
	KindKarmaAdjust
	KindKarmaList
	KindExport
	KindStats
	KindHelp
)

// String returns a short name for logging.
func (k Kind) String() string {
	switch k {
	case KindPlainMessage:
		return "plain_message"
	case KindMeetingStart:
		return "meeting_start"
	case KindMeetingEnd:
		return "meeting_end"
	case KindMeetingStatus:
		return "meeting_status"
	case KindChairChange:
		return "chair_change"
	case KindCoChairAdd:
		return "cochair_add"
	case KindActionAdd:
		return "action_add"
	case KindActionList:
		return "action_list"
	case KindKarmaAdjust:
		return "karma_adjust"
	case KindKarmaList:
		return "karma_list"
	case KindExport:
		return "export"
	case KindStats:
		return "stats"
	case KindHelp:
		return "help"
	}
	return "unknown"
}

// Command is one parsed inbound line.
type Command struct {
	Kind Kind

	// TargetID is the bare actor id for chair, cochair and karma
	// commands, unwrapped from the <@ID> mention syntax.
	TargetID string

	// Assignee and Task carry the action-add payload. Assignee has any
	// leading @ stripped; AssigneeIsMention marks that it arrived as a
	// platform mention and TargetID holds the unwrapped id.
	Assignee          string
	AssigneeIsMention bool
	Task              string

	// Delta is +1 or -1 for karma adjustments.
	Delta int

	// Raw is the original text, kept for recording plain messages.
	Raw string
}

// UsageError reports text that starts like a command but is malformed.
// The hint is safe to show to the invoking user.
type UsageError struct {
	Hint string
}

func (e *UsageError) Error() string {
	return e.Hint
}

var (
	mentionRe = regexp.MustCompile(`^<@([A-Z0-9]+)>$`)
	// Prefix match: trailing text after the ++/-- is ignored, so
	// "<@U1>++ thanks!" still adjusts karma.
	karmaRe      = regexp.MustCompile(`^<@([A-Z0-9]+)>\s*(\+\+|--)`)
	meetingUsage = "Invalid command. Use 'start', 'end', or 'status'."
)

// UnwrapMention extracts the actor id from a <@ID> mention token.
func UnwrapMention(token string) (string, bool) {
	m := mentionRe.FindStringSubmatch(token)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Parse classifies one line of inbound text. It never panics; anything
// that is not a recognized command comes back as KindPlainMessage, and
// malformed command attempts come back as a *UsageError.
func Parse(text string) (*Command, error) {
	trimmed := strings.TrimSpace(text)

	// Bare "<@U123>++" / "<@U123>--" works without the ! prefix.
	if m := karmaRe.FindStringSubmatch(trimmed); m != nil {
		return karmaAdjust(m, trimmed), nil
	}

	if !strings.HasPrefix(trimmed, "!") {
		return &Command{Kind: KindPlainMessage, Raw: text}, nil
	}

	fields := strings.Fields(trimmed)
	keyword := strings.ToLower(strings.TrimPrefix(fields[0], "!"))
	args := fields[1:]

	switch keyword {
	case "meeting":
		return parseMeeting(args)
	case "chair":
		return parseRole(KindChairChange, args, "Please mention a user to assign as chair: !chair @user")
	case "cochair":
		return parseRole(KindCoChairAdd, args, "Please mention a user to assign as co-chair: !cochair @user")
	case "action":
		return parseAction(trimmed, args)
	case "karma":
		return parseKarma(trimmed, args)
	case "export":
		return &Command{Kind: KindExport, Raw: text}, nil
	case "stats":
		return &Command{Kind: KindStats, Raw: text}, nil
	case "help":
		return &Command{Kind: KindHelp, Raw: text}, nil
	}

	// Unknown !words are ordinary chatter, same as any other text.
	return &Command{Kind: KindPlainMessage, Raw: text}, nil
}

func karmaAdjust(m []string, raw string) *Command {
	delta := 1
	if m[2] == "--" {
		delta = -1
	}
	return &Command{
		Kind:     KindKarmaAdjust,
		TargetID: m[1],
		Delta:    delta,
		Raw:      raw,
	}
}

func parseMeeting(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, &UsageError{Hint: "Please provide a subcommand (start, end, status)"}
	}
	switch strings.ToLower(args[0]) {
	case "start":
		return &Command{Kind: KindMeetingStart}, nil
	case "end":
		return &Command{Kind: KindMeetingEnd}, nil
	case "status":
		return &Command{Kind: KindMeetingStatus}, nil
	}
	return nil, &UsageError{Hint: meetingUsage}
}

func parseRole(kind Kind, args []string, usage string) (*Command, error) {
	if len(args) == 0 {
		return nil, &UsageError{Hint: usage}
	}
	id, ok := UnwrapMention(args[0])
	if !ok {
		return nil, &UsageError{Hint: usage}
	}
	return &Command{Kind: kind, TargetID: id}, nil
}

func parseAction(raw string, args []string) (*Command, error) {
	if len(args) == 1 && strings.EqualFold(args[0], "list") {
		return &Command{Kind: KindActionList}, nil
	}
	if len(args) < 2 {
		return nil, &UsageError{Hint: "Please use format: !action user task"}
	}

	assignee := args[0]
	task := strings.TrimSpace(strings.Join(args[1:], " "))
	if task == "" {
		return nil, &UsageError{Hint: "Please provide an action description after the user"}
	}

	cmd := &Command{Kind: KindActionAdd, Task: task, Raw: raw}
	if id, ok := UnwrapMention(assignee); ok {
		cmd.AssigneeIsMention = true
		cmd.TargetID = id
		cmd.Assignee = id
	} else {
		cmd.Assignee = strings.TrimPrefix(assignee, "@")
	}
	return cmd, nil
}

func parseKarma(raw string, args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, &UsageError{Hint: "Please specify a karma action: !karma @user++ or !karma @user-- or !karma list"}
	}
	if len(args) == 1 && strings.EqualFold(args[0], "list") {
		return &Command{Kind: KindKarmaList}, nil
	}

	rest := strings.Join(args, " ")
	if m := karmaRe.FindStringSubmatch(rest); m != nil {
		return karmaAdjust(m, raw), nil
	}
	return nil, &UsageError{Hint: "Invalid karma command format. Use: !karma @user++ or !karma @user--"}
}
