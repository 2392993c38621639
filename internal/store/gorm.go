package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"gift-circle/internal/db"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists games through gorm; it works on Postgres and SQLite.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn}
}

func (s *GormStore) CreateGame(ctx context.Context, game Game) error {
	if game.Status == "" {
		game.Status = StatusActive
	}
	record := db.Game{
		ID:        game.ID,
		OwnerID:   game.OwnerID,
		Status:    string(game.Status),
		CreatedAt: game.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrGameExists
		}
		return fmt.Errorf("create game: %w", err)
	}
	return nil
}

func (s *GormStore) GetGame(ctx context.Context, id string) (Game, error) {
	var record db.Game
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error; err != nil {
		return Game{}, notFoundOr(err, "get game")
	}
	return toGame(record), nil
}

func (s *GormStore) ListOwnedGames(ctx context.Context, ownerID int64, status GameStatus) ([]Game, error) {
	var records []db.Game
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, string(status)).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list owned games: %w", err)
	}
	return lo.Map(records, func(r db.Game, _ int) Game { return toGame(r) }), nil
}

func (s *GormStore) ListUserGames(ctx context.Context, userID int64, limit int) ([]Game, error) {
	joined := s.db.Model(&db.Participant{}).Select("game_id").Where("user_id = ?", userID)
	query := s.db.WithContext(ctx).
		Where("owner_id = ? OR id IN (?)", userID, joined).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []db.Game
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list user games: %w", err)
	}
	return lo.Map(records, func(r db.Game, _ int) Game { return toGame(r) }), nil
}

func (s *GormStore) GetParticipant(ctx context.Context, gameID string, userID int64) (Participant, error) {
	var record db.Participant
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND user_id = ?", gameID, userID).
		First(&record).Error
	if err != nil {
		return Participant{}, notFoundOr(err, "get participant")
	}
	return toParticipant(record), nil
}

// AddParticipant holds a shared lock on the game row while inserting, so a
// concurrent FinishGame either waits for the join or the join sees the game
// finished. SQLite ignores the lock clause; its single connection serialises
// the two transactions instead.
func (s *GormStore) AddParticipant(ctx context.Context, participant Participant) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var game db.Game
		err := tx.Clauses(clause.Locking{Strength: "SHARE"}).
			Where("id = ?", participant.GameID).
			Take(&game).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
		if GameStatus(game.Status) != StatusActive {
			return ErrGameNotActive
		}

		record := db.Participant{
			GameID:      participant.GameID,
			UserID:      participant.UserID,
			DisplayName: participant.DisplayName,
			JoinedAt:    participant.JoinedAt,
		}
		if err := tx.Create(&record).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyJoined
			}
			return fmt.Errorf("add participant: %w", err)
		}
		return nil
	})
}

func (s *GormStore) ListParticipants(ctx context.Context, gameID string) ([]Participant, error) {
	records, err := s.participants(s.db.WithContext(ctx), gameID)
	if err != nil {
		return nil, err
	}
	return lo.Map(records, func(r db.Participant, _ int) Participant { return toParticipant(r) }), nil
}

func (s *GormStore) participants(tx *gorm.DB, gameID string) ([]db.Participant, error) {
	var records []db.Participant
	if err := tx.Where("game_id = ?", gameID).Order("joined_at, id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return records, nil
}

func (s *GormStore) ParticipantNames(ctx context.Context, gameID string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&db.Participant{}).
		Where("game_id = ?", gameID).
		Order("joined_at, id").
		Pluck("display_name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("participant names: %w", err)
	}
	return names, nil
}

func (s *GormStore) FinishGame(ctx context.Context, gameID string, at time.Time, plan PlanFunc) ([]Conversation, error) {
	var created []Conversation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Game{}).
			Where("id = ? AND status = ?", gameID, string(StatusActive)).
			Updates(map[string]any{
				"status":      string(StatusFinished),
				"finished_at": at,
			})
		if result.Error != nil {
			return fmt.Errorf("finish game: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&db.Game{}).Where("id = ?", gameID).Count(&count).Error; err != nil {
				return fmt.Errorf("finish game: %w", err)
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrAlreadyFinished
		}

		records, err := s.participants(tx, gameID)
		if err != nil {
			return err
		}
		assignments, err := plan(lo.Map(records, func(r db.Participant, _ int) Participant {
			return toParticipant(r)
		}))
		if err != nil {
			return err
		}

		for _, a := range assignments {
			update := tx.Model(&db.Participant{}).
				Where("game_id = ? AND user_id = ? AND assigned_to IS NULL", gameID, a.GiverID).
				Update("assigned_to", a.ReceiverID)
			if update.Error != nil {
				return fmt.Errorf("assign recipient: %w", update.Error)
			}
			if update.RowsAffected != 1 {
				return fmt.Errorf("assign recipient: giver %d is not an unassigned participant", a.GiverID)
			}
			record := db.Conversation{
				GameID:     gameID,
				GiverID:    a.GiverID,
				ReceiverID: a.ReceiverID,
				CreatedAt:  at,
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("create conversation: %w", err)
			}
			created = append(created, toConversation(record))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *GormStore) ListConversations(ctx context.Context, userID int64) ([]ConversationSummary, error) {
	tx := s.db.WithContext(ctx)
	var records []db.Conversation
	err := tx.Where("giver_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if len(records) == 0 {
		return []ConversationSummary{}, nil
	}
	views, err := s.views(tx, records)
	if err != nil {
		return nil, err
	}

	type countRow struct {
		ConversationID int64
		Total          int
	}
	var counts []countRow
	err = tx.Model(&db.RelayMessage{}).
		Select("conversation_id, COUNT(*) AS total").
		Where("conversation_id IN ?", lo.Map(records, func(r db.Conversation, _ int) int64 { return r.ID })).
		Group("conversation_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	totals := lo.SliceToMap(counts, func(c countRow) (int64, int) { return c.ConversationID, c.Total })

	return lo.Map(views, func(v ConversationView, _ int) ConversationSummary {
		return ConversationSummary{ConversationView: v, MessageCount: totals[v.ID]}
	}), nil
}

func (s *GormStore) GetConversation(ctx context.Context, id int64, userID int64) (ConversationView, error) {
	tx := s.db.WithContext(ctx)
	var record db.Conversation
	err := tx.Where("id = ? AND (giver_id = ? OR receiver_id = ?)", id, userID, userID).First(&record).Error
	if err != nil {
		return ConversationView{}, notFoundOr(err, "get conversation")
	}
	views, err := s.views(tx, []db.Conversation{record})
	if err != nil {
		return ConversationView{}, err
	}
	return views[0], nil
}

// views attaches both display names to each conversation with one lookup.
func (s *GormStore) views(tx *gorm.DB, records []db.Conversation) ([]ConversationView, error) {
	gameIDs := lo.Uniq(lo.Map(records, func(r db.Conversation, _ int) string { return r.GameID }))
	var participants []db.Participant
	if err := tx.Where("game_id IN ?", gameIDs).Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("load conversation names: %w", err)
	}
	names := make(map[string]string, len(participants))
	nameKey := func(gameID string, userID int64) string {
		return fmt.Sprintf("%s/%d", gameID, userID)
	}
	for _, p := range participants {
		names[nameKey(p.GameID, p.UserID)] = p.DisplayName
	}
	return lo.Map(records, func(r db.Conversation, _ int) ConversationView {
		return ConversationView{
			Conversation: toConversation(r),
			GiverName:    names[nameKey(r.GameID, r.GiverID)],
			ReceiverName: names[nameKey(r.GameID, r.ReceiverID)],
		}
	}), nil
}

func (s *GormStore) AppendMessage(ctx context.Context, message RelayMessage) (RelayMessage, error) {
	if err := s.exists(ctx, &db.Conversation{}, "id = ?", message.ConversationID); err != nil {
		return RelayMessage{}, err
	}
	record := db.RelayMessage{
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		Body:           message.Body,
		SentAt:         message.SentAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return RelayMessage{}, fmt.Errorf("append message: %w", err)
	}
	return toRelayMessage(record), nil
}

func (s *GormStore) ListMessages(ctx context.Context, conversationID int64, limit int) ([]RelayMessage, error) {
	query := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("sent_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var records []db.RelayMessage
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	slices.Reverse(records)
	return lo.Map(records, func(r db.RelayMessage, _ int) RelayMessage { return toRelayMessage(r) }), nil
}

func (s *GormStore) ListInbox(ctx context.Context, userID int64) ([]InboxEntry, error) {
	tx := s.db.WithContext(ctx)
	var conversations []db.Conversation
	if err := tx.Where("giver_id = ? OR receiver_id = ?", userID, userID).Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	if len(conversations) == 0 {
		return []InboxEntry{}, nil
	}
	ids := lo.Map(conversations, func(r db.Conversation, _ int) int64 { return r.ID })
	latest := tx.Model(&db.RelayMessage{}).
		Select("MAX(id)").
		Where("conversation_id IN ?", ids).
		Group("conversation_id")
	var messages []db.RelayMessage
	if err := tx.Where("id IN (?)", latest).Order("sent_at DESC, id DESC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	views, err := s.views(tx, conversations)
	if err != nil {
		return nil, err
	}
	byID := lo.KeyBy(views, func(v ConversationView) int64 { return v.ID })
	return lo.Map(messages, func(m db.RelayMessage, _ int) InboxEntry {
		return InboxEntry{ConversationView: byID[m.ConversationID], LastMessage: toRelayMessage(m)}
	}), nil
}

func (s *GormStore) RecordEvent(ctx context.Context, event Event) error {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := db.Event{
		GameID:    event.GameID,
		Type:      event.Type,
		Payload:   datatypes.JSON(data),
		CreatedAt: event.At,
	}
	if event.UserID != 0 {
		userID := event.UserID
		record.UserID = &userID
	}
	return s.db.WithContext(ctx).Create(&record).Error
}

// GameOverview is one row of the operator listing.
type GameOverview struct {
	Game
	Participants  int
	Conversations int
	Messages      int
}

type overviewRow struct {
	db.Game
	Participants  int
	Conversations int
	Messages      int
}

// Overview lists the most recent games with their sizes, newest first.
func (s *GormStore) Overview(ctx context.Context, limit int) ([]GameOverview, error) {
	query := s.db.WithContext(ctx).
		Model(&db.Game{}).
		Select(`games.*,
			(SELECT COUNT(*) FROM participants p WHERE p.game_id = games.id) AS participants,
			(SELECT COUNT(*) FROM conversations c WHERE c.game_id = games.id) AS conversations,
			(SELECT COUNT(*) FROM relay_messages m JOIN conversations c ON c.id = m.conversation_id
				WHERE c.game_id = games.id) AS messages`).
		Order("games.created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []overviewRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("game overview: %w", err)
	}
	return lo.Map(rows, func(r overviewRow, _ int) GameOverview {
		return GameOverview{
			Game:          toGame(r.Game),
			Participants:  r.Participants,
			Conversations: r.Conversations,
			Messages:      r.Messages,
		}
	}), nil
}

func (s *GormStore) exists(ctx context.Context, model any, query string, args ...any) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return fmt.Errorf("lookup: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

func toGame(r db.Game) Game {
	return Game{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Status:     GameStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		FinishedAt: r.FinishedAt,
	}
}

func toParticipant(r db.Participant) Participant {
	return Participant{
		GameID:      r.GameID,
		UserID:      r.UserID,
		DisplayName: r.DisplayName,
		AssignedTo:  r.AssignedTo,
		JoinedAt:    r.JoinedAt,
	}
}

func toConversation(r db.Conversation) Conversation {
	return Conversation{
		ID:         r.ID,
		GameID:     r.GameID,
		GiverID:    r.GiverID,
		ReceiverID: r.ReceiverID,
		CreatedAt:  r.CreatedAt,
	}
}

func toRelayMessage(r db.RelayMessage) RelayMessage {
	return RelayMessage{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Body:           r.Body,
		SentAt:         r.SentAt,
	}
}

func notFoundOr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
