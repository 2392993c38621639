// Package session keeps the per-user conversational context of multi-step
// interactions such as joining a game or composing a message.
//
// Every store serialises the read-modify-write of one user's slot; slots of
// different users never wait on each other.
package session

import "context"

type Kind string

const (
	KindIdle                Kind = "idle"
	KindAwaitingGameID      Kind = "awaiting_game_id"
	KindAwaitingDisplayName Kind = "awaiting_display_name"
	KindAwaitingMessageBody Kind = "awaiting_message_body"
)

// State is a tagged variant: GameID is set only for KindAwaitingDisplayName,
// ConversationID only for KindAwaitingMessageBody.
type State struct {
	Kind           Kind   `json:"kind"`
	GameID         string `json:"game_id,omitempty"`
	ConversationID int64  `json:"conversation_id,omitempty"`
}

func Idle() State {
	return State{Kind: KindIdle}
}

func AwaitingGameID() State {
	return State{Kind: KindAwaitingGameID}
}

func AwaitingDisplayName(gameID string) State {
	return State{Kind: KindAwaitingDisplayName, GameID: gameID}
}

func AwaitingMessageBody(conversationID int64) State {
	return State{Kind: KindAwaitingMessageBody, ConversationID: conversationID}
}

func (s State) IsIdle() bool {
	return s.Kind == "" || s.Kind == KindIdle
}

// UpdateFunc receives the current state and returns the state to store.
// Returning an error leaves the slot untouched.
type UpdateFunc func(current State) (State, error)

type Store interface {
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, state State) error
	Clear(ctx context.Context, userID int64) error
	// Update runs fn while holding the user's slot, so concurrent events of
	// the same user never overwrite each other's result.
	Update(ctx context.Context, userID int64, fn UpdateFunc) error
}
