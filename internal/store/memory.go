package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MemoryStore keeps everything in process memory behind a single mutex. It is
// used when no database is configured and in tests.
type MemoryStore struct {
	mu                 sync.Mutex
	nextSeq            int
	nextConversationID int64
	nextMessageID      int64
	games              map[string]*Game
	gameSeq            map[string]int
	participants       map[string][]Participant
	conversations      []Conversation
	messages           map[int64][]RelayMessage
	events             []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextSeq:            1,
		nextConversationID: 1,
		nextMessageID:      1,
		games:              make(map[string]*Game),
		gameSeq:            make(map[string]int),
		participants:       make(map[string][]Participant),
		messages:           make(map[int64][]RelayMessage),
	}
}

func (s *MemoryStore) CreateGame(_ context.Context, game Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[game.ID]; ok {
		return ErrGameExists
	}
	if game.Status == "" {
		game.Status = StatusActive
	}
	s.games[game.ID] = &game
	s.gameSeq[game.ID] = s.nextSeq
	s.nextSeq++
	return nil
}

func (s *MemoryStore) GetGame(_ context.Context, id string) (Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[id]
	if !ok {
		return Game{}, ErrNotFound
	}
	return *game, nil
}

func (s *MemoryStore) ListOwnedGames(_ context.Context, ownerID int64, status GameStatus) ([]Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Game, 0)
	for _, game := range s.games {
		if game.OwnerID == ownerID && game.Status == status {
			list = append(list, *game)
		}
	}
	s.sortNewestFirst(list)
	return list, nil
}

func (s *MemoryStore) ListUserGames(_ context.Context, userID int64, limit int) ([]Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Game, 0)
	for id, game := range s.games {
		joined := lo.ContainsBy(s.participants[id], func(p Participant) bool {
			return p.UserID == userID
		})
		if game.OwnerID == userID || joined {
			list = append(list, *game)
		}
	}
	s.sortNewestFirst(list)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *MemoryStore) sortNewestFirst(games []Game) {
	sort.Slice(games, func(i, j int) bool {
		if !games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].CreatedAt.After(games[j].CreatedAt)
		}
		return s.gameSeq[games[i].ID] > s.gameSeq[games[j].ID]
	})
}

func (s *MemoryStore) GetParticipant(_ context.Context, gameID string, userID int64) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	participant, ok := lo.Find(s.participants[gameID], func(p Participant) bool {
		return p.UserID == userID
	})
	if !ok {
		return Participant{}, ErrNotFound
	}
	return participant, nil
}

func (s *MemoryStore) AddParticipant(_ context.Context, participant Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[participant.GameID]
	if !ok {
		return ErrNotFound
	}
	if !game.Active() {
		return ErrGameNotActive
	}
	for _, existing := range s.participants[participant.GameID] {
		if existing.UserID == participant.UserID {
			return ErrAlreadyJoined
		}
	}
	participant.AssignedTo = nil
	s.participants[participant.GameID] = append(s.participants[participant.GameID], participant)
	return nil
}

func (s *MemoryStore) ListParticipants(_ context.Context, gameID string) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Participant(nil), s.participants[gameID]...), nil
}

func (s *MemoryStore) ParticipantNames(_ context.Context, gameID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.participants[gameID], func(p Participant, _ int) string {
		return p.DisplayName
	}), nil
}

func (s *MemoryStore) FinishGame(_ context.Context, gameID string, at time.Time, plan PlanFunc) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return nil, ErrNotFound
	}
	if game.Status != StatusActive {
		return nil, ErrAlreadyFinished
	}

	participants := append([]Participant(nil), s.participants[gameID]...)
	assignments, err := plan(participants)
	if err != nil {
		return nil, err
	}
	index := make(map[int64]int, len(participants))
	for i, p := range participants {
		index[p.UserID] = i
	}
	for _, a := range assignments {
		_, giverOK := index[a.GiverID]
		_, receiverOK := index[a.ReceiverID]
		if !giverOK || !receiverOK {
			return nil, fmt.Errorf("assignment %d -> %d references a non-participant", a.GiverID, a.ReceiverID)
		}
	}

	// Nothing is written before every assignment has been checked.
	for _, a := range assignments {
		receiver := a.ReceiverID
		participants[index[a.GiverID]].AssignedTo = &receiver
	}
	s.participants[gameID] = participants
	created := make([]Conversation, 0, len(assignments))
	for _, a := range assignments {
		conversation := Conversation{
			ID:         s.nextConversationID,
			GameID:     gameID,
			GiverID:    a.GiverID,
			ReceiverID: a.ReceiverID,
			CreatedAt:  at,
		}
		s.nextConversationID++
		s.conversations = append(s.conversations, conversation)
		created = append(created, conversation)
	}
	finishedAt := at
	game.Status = StatusFinished
	game.FinishedAt = &finishedAt
	return created, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID int64) ([]ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]ConversationSummary, 0)
	for i := len(s.conversations) - 1; i >= 0; i-- {
		conversation := s.conversations[i]
		if !conversation.Involves(userID) {
			continue
		}
		list = append(list, ConversationSummary{
			ConversationView: s.viewLocked(conversation),
			MessageCount:     len(s.messages[conversation.ID]),
		})
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id int64, userID int64) (ConversationView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation, ok := lo.Find(s.conversations, func(c Conversation) bool {
		return c.ID == id && c.Involves(userID)
	})
	if !ok {
		return ConversationView{}, ErrNotFound
	}
	return s.viewLocked(conversation), nil
}

func (s *MemoryStore) viewLocked(conversation Conversation) ConversationView {
	name := func(userID int64) string {
		p, _ := lo.Find(s.participants[conversation.GameID], func(p Participant) bool {
			return p.UserID == userID
		})
		return p.DisplayName
	}
	return ConversationView{
		Conversation: conversation,
		GiverName:    name(conversation.GiverID),
		ReceiverName: name(conversation.ReceiverID),
	}
}

func (s *MemoryStore) AppendMessage(_ context.Context, message RelayMessage) (RelayMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !lo.ContainsBy(s.conversations, func(c Conversation) bool { return c.ID == message.ConversationID }) {
		return RelayMessage{}, ErrNotFound
	}
	message.ID = s.nextMessageID
	s.nextMessageID++
	list := append(s.messages[message.ConversationID], message)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].SentAt.Before(list[j].SentAt)
	})
	s.messages[message.ConversationID] = list
	return message, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID int64, limit int) ([]RelayMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.messages[conversationID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	return append([]RelayMessage(nil), list...), nil
}

func (s *MemoryStore) ListInbox(_ context.Context, userID int64) ([]InboxEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]InboxEntry, 0)
	for _, conversation := range s.conversations {
		if !conversation.Involves(userID) {
			continue
		}
		messages := s.messages[conversation.ID]
		if len(messages) == 0 {
			continue
		}
		list = append(list, InboxEntry{
			ConversationView: s.viewLocked(conversation),
			LastMessage:      messages[len(messages)-1],
		})
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastMessage.SentAt.After(list[j].LastMessage.SentAt)
	})
	return list, nil
}

func (s *MemoryStore) RecordEvent(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded audit trail.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
