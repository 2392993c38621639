package bot

import (
	"fmt"
	"strings"
)

type EventKind int

const (
	EventText EventKind = iota
	EventCommand
	EventAction
)

// Event is one inbound update from a user. Command holds the lower-cased
// command name without the slash; Data holds the raw button token.
type Event struct {
	Kind    EventKind
	UserID  int64
	Text    string
	Command string
	Args    string
	Data    string
}

func TextEvent(userID int64, text string) Event {
	return Event{Kind: EventText, UserID: userID, Text: text}
}

func CommandEvent(userID int64, command, args string) Event {
	return Event{
		Kind:    EventCommand,
		UserID:  userID,
		Command: strings.ToLower(command),
		Args:    strings.TrimSpace(args),
	}
}

func ActionEvent(userID int64, data string) Event {
	return Event{Kind: EventAction, UserID: userID, Data: data}
}

// Button is one selectable action under a reply.
type Button struct {
	Label  string
	Action Action
}

// Reply is what the bot answers to an event. An empty Text means nothing is
// sent. Notice is the short toast shown for a button press.
type Reply struct {
	Text    string
	Buttons [][]Button
	Notice  string
}

func (r Reply) Empty() bool {
	return r.Text == ""
}

func textf(format string, args ...any) Reply {
	return Reply{Text: fmt.Sprintf(format, args...)}
}
