package bot

import (
	"github.com/meetbot/internal/command"
	"github.com/meetbot/internal/store"
)

// DeniedError is an authorization refusal. Reason is user-facing and is
// always delivered privately to the invoking actor.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return e.Reason
}

// authorize decides whether the actor may run the command given the
// channel's active meeting (nil when none). Only the chair id gates
// privileged actions; co-chairs are recorded but carry no privilege,
// matching the bot's historical behavior.
func authorize(cmd *command.Command, meeting *store.Meeting, actorID string) error {
	switch cmd.Kind {
	case command.KindMeetingStart:
		if meeting != nil {
			return &DeniedError{Reason: "There's already an active meeting in this channel!"}
		}

	case command.KindMeetingEnd:
		if meeting == nil {
			return &DeniedError{Reason: "No active meeting found in this channel!"}
		}
		if meeting.ChairID != actorID {
			return &DeniedError{Reason: "Only the meeting chair can end the meeting!"}
		}

	case command.KindChairChange:
		if meeting == nil {
			return &DeniedError{Reason: "No active meeting found in this channel!"}
		}
		if meeting.ChairID != actorID {
			return &DeniedError{Reason: "Only the current chair can change the chair!"}
		}

	case command.KindCoChairAdd:
		if meeting == nil {
			return &DeniedError{Reason: "No active meeting found in this channel!"}
		}
		if meeting.ChairID != actorID {
			return &DeniedError{Reason: "Only the chair can add co-chairs!"}
		}

	case command.KindMeetingStatus, command.KindActionAdd, command.KindActionList, command.KindStats:
		if meeting == nil {
			return &DeniedError{Reason: "No active meeting found in this channel!"}
		}

	case command.KindKarmaAdjust:
		if cmd.TargetID == actorID {
			return &DeniedError{Reason: "Nice try! You can't modify your own karma 😉"}
		}
	}

	return nil
}
