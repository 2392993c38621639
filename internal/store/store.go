// Package store is the persistence contract of the gift exchange and its two
// implementations: an in-process MemoryStore and a gorm-backed GormStore.
package store

import (
	"context"
	"time"

	"gift-circle/internal/apperr"
)

var (
	ErrNotFound        = apperr.NotFound("record not found")
	ErrGameExists      = apperr.AlreadyExists("game id already taken")
	ErrAlreadyJoined   = apperr.AlreadyExists("already participating in this game")
	ErrAlreadyFinished = apperr.FailedPrecondition("game already finished")
	ErrGameNotActive   = apperr.FailedPrecondition("game is no longer accepting participants")
)

// PlanFunc derives the assignments of a game from its participants, in join
// order. Returning an error aborts FinishGame and leaves the game active.
type PlanFunc func(participants []Participant) ([]Assignment, error)

type Store interface {
	CreateGame(ctx context.Context, game Game) error
	GetGame(ctx context.Context, id string) (Game, error)
	// ListOwnedGames returns the owner's games with the given status, newest first.
	ListOwnedGames(ctx context.Context, ownerID int64, status GameStatus) ([]Game, error)
	// ListUserGames returns games the user owns or joined, newest first.
	ListUserGames(ctx context.Context, userID int64, limit int) ([]Game, error)

	GetParticipant(ctx context.Context, gameID string, userID int64) (Participant, error)
	// AddParticipant fails with ErrAlreadyJoined, leaving the store untouched,
	// when the user is already enrolled in the game, and with ErrGameNotActive
	// once the game is finished. The status check and the insert are atomic
	// with respect to FinishGame.
	AddParticipant(ctx context.Context, participant Participant) error
	ListParticipants(ctx context.Context, gameID string) ([]Participant, error)
	ParticipantNames(ctx context.Context, gameID string) ([]string, error)

	// FinishGame flips the game from active to finished exactly once. Under the
	// same transaction it loads the participants, asks plan for the
	// assignments and stores each one together with its conversation. When the
	// game is no longer active it returns ErrAlreadyFinished without calling plan.
	FinishGame(ctx context.Context, gameID string, at time.Time, plan PlanFunc) ([]Conversation, error)

	ListConversations(ctx context.Context, userID int64) ([]ConversationSummary, error)
	// GetConversation returns ErrNotFound unless userID is one of the two parties.
	GetConversation(ctx context.Context, id int64, userID int64) (ConversationView, error)

	AppendMessage(ctx context.Context, message RelayMessage) (RelayMessage, error)
	// ListMessages returns the most recent limit messages in chronological
	// order; limit <= 0 returns all of them.
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]RelayMessage, error)
	// ListInbox returns the latest message of every conversation of the user
	// that has one, most recent first.
	ListInbox(ctx context.Context, userID int64) ([]InboxEntry, error)

	RecordEvent(ctx context.Context, event Event) error
}
