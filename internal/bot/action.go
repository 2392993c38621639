package bot

import (
	"fmt"
	"strconv"
	"strings"

	"gift-circle/internal/apperr"
	"gift-circle/internal/store"
)

// Verb names a button press.
type Verb string

const (
	VerbCheck         Verb = "check"
	VerbFinish        Verb = "finish"
	VerbOpen          Verb = "open"
	VerbSend          Verb = "send"
	VerbConversations Verb = "conversations"
)

// Action is a parsed button token: a verb plus the game or conversation it
// targets.
type Action struct {
	Verb           Verb
	GameID         string
	ConversationID int64
}

func CheckAction(gameID string) Action {
	return Action{Verb: VerbCheck, GameID: gameID}
}

func FinishAction(gameID string) Action {
	return Action{Verb: VerbFinish, GameID: gameID}
}

func OpenAction(conversationID int64) Action {
	return Action{Verb: VerbOpen, ConversationID: conversationID}
}

func SendAction(conversationID int64) Action {
	return Action{Verb: VerbSend, ConversationID: conversationID}
}

func ConversationsAction() Action {
	return Action{Verb: VerbConversations}
}

var errBadToken = apperr.InvalidArg("unrecognised action")

// Token renders the action as "<verb>:<id>". Telegram caps callback data at
// 64 bytes, which every token stays well under.
func (a Action) Token() string {
	switch a.Verb {
	case VerbCheck, VerbFinish:
		return fmt.Sprintf("%s:%s", a.Verb, a.GameID)
	case VerbOpen, VerbSend:
		return fmt.Sprintf("%s:%d", a.Verb, a.ConversationID)
	default:
		return string(a.Verb)
	}
}

// ParseAction is the inverse of Token.
func ParseAction(token string) (Action, error) {
	verb, payload, hasPayload := strings.Cut(strings.TrimSpace(token), ":")
	switch Verb(verb) {
	case VerbCheck, VerbFinish:
		gameID := store.NormalizeGameID(payload)
		if !hasPayload || gameID == "" {
			return Action{}, errBadToken
		}
		return Action{Verb: Verb(verb), GameID: gameID}, nil
	case VerbOpen, VerbSend:
		id, err := strconv.ParseInt(payload, 10, 64)
		if !hasPayload || err != nil || id <= 0 {
			return Action{}, errBadToken
		}
		return Action{Verb: Verb(verb), ConversationID: id}, nil
	case VerbConversations:
		if hasPayload {
			return Action{}, errBadToken
		}
		return ConversationsAction(), nil
	default:
		return Action{}, errBadToken
	}
}
