package store

import "time"

type GameStatus string

const (
	StatusActive   GameStatus = "active"
	StatusFinished GameStatus = "finished"
)

type Game struct {
	ID         string
	OwnerID    int64
	Status     GameStatus
	CreatedAt  time.Time
	FinishedAt *time.Time
}

func (g Game) Active() bool {
	return g.Status == StatusActive
}

type Participant struct {
	GameID      string
	UserID      int64
	DisplayName string
	AssignedTo  *int64
	JoinedAt    time.Time
}

// Assignment is one edge of a game's gift circle.
type Assignment struct {
	GiverID    int64
	ReceiverID int64
}

// Conversation is the anonymous channel bound to one assignment edge.
type Conversation struct {
	ID         int64
	GameID     string
	GiverID    int64
	ReceiverID int64
	CreatedAt  time.Time
}

func (c Conversation) Involves(userID int64) bool {
	return c.GiverID == userID || c.ReceiverID == userID
}

func (c Conversation) IsGiver(userID int64) bool {
	return c.GiverID == userID
}

// Partner returns the other party of the conversation.
func (c Conversation) Partner(userID int64) int64 {
	if c.GiverID == userID {
		return c.ReceiverID
	}
	return c.GiverID
}

// ConversationView carries the display names of both parties. Only the
// receiver's name may ever be shown to the giver; the giver stays anonymous.
type ConversationView struct {
	Conversation
	GiverName    string
	ReceiverName string
}

type ConversationSummary struct {
	ConversationView
	MessageCount int
}

type RelayMessage struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Body           string
	SentAt         time.Time
}

type InboxEntry struct {
	ConversationView
	LastMessage RelayMessage
}

// Event is an audit record of something that happened to a game.
type Event struct {
	GameID  string
	UserID  int64
	Type    string
	Payload map[string]any
	At      time.Time
}

const (
	EventGameCreated       = "game_created"
	EventParticipantJoined = "participant_joined"
	EventGameFinished      = "game_finished"
	EventMessageRelayed    = "message_relayed"
)
