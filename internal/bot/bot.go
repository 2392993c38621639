// Package bot turns inbound chat events into replies: it routes commands and
// button presses, drives the per-user join and compose flows, and runs the
// organizer's finish flow.
package bot

import (
	"context"
	"errors"
	"time"

	"gift-circle/internal/apperr"
	"gift-circle/internal/assign"
	"gift-circle/internal/relay"
	"gift-circle/internal/session"
	"gift-circle/internal/store"

	"go.uber.org/zap"
)

// Scheduler arms a delayed notification and reports the delay it picked.
type Scheduler interface {
	Schedule(recipient int64, text string) time.Duration
}

type Bot struct {
	store    store.Store
	sessions session.Store
	engine   *assign.Engine
	relay    Scheduler
	notifier relay.Notifier
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Bot)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bot) {
		b.now = now
	}
}

func New(st store.Store, sessions session.Store, engine *assign.Engine, scheduler Scheduler,
	notifier relay.Notifier, logger *zap.Logger, opts ...Option) *Bot {
	b := &Bot{
		store:    st,
		sessions: sessions,
		engine:   engine,
		relay:    scheduler,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handle dispatches one event. It never fails: every error is turned into a
// user-facing reply. An empty reply means nothing should be sent.
func (b *Bot) Handle(ctx context.Context, ev Event) Reply {
	switch ev.Kind {
	case EventCommand:
		return b.handleCommand(ctx, ev)
	case EventAction:
		action, err := ParseAction(ev.Data)
		if err != nil {
			b.logger.Debug("unrecognised action", zap.Int64("user_id", ev.UserID), zap.String("data", ev.Data))
			return Reply{Text: msgUnknownAction}
		}
		return b.handleAction(ctx, ev.UserID, action)
	default:
		return b.continueSession(ctx, ev.UserID, ev.Text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, ev Event) Reply {
	user := ev.UserID
	switch ev.Command {
	case "start", "help":
		return Reply{Text: helpText}
	case "create":
		return b.createGame(ctx, user)
	case "join":
		return b.beginJoin(ctx, user, ev.Args)
	case "cancel":
		return b.cancel(ctx, user)
	case "finish", "complete":
		if ev.Args != "" {
			return b.finishGame(ctx, user, store.NormalizeGameID(ev.Args))
		}
		return b.listOwnedGames(ctx, user)
	case "check", "santas":
		if ev.Args != "" {
			return b.roster(ctx, user, store.NormalizeGameID(ev.Args))
		}
		return b.listRecentGames(ctx, user)
	case "chat", "conversations":
		return b.listConversations(ctx, user)
	case "inbox":
		return b.inbox(ctx, user)
	default:
		return Reply{Text: msgUnknownCommand}
	}
}

func (b *Bot) handleAction(ctx context.Context, user int64, action Action) Reply {
	switch action.Verb {
	case VerbCheck:
		return b.roster(ctx, user, action.GameID)
	case VerbFinish:
		return b.finishGame(ctx, user, action.GameID)
	case VerbOpen:
		return b.openConversation(ctx, user, action.ConversationID)
	case VerbSend:
		return b.beginSend(ctx, user, action.ConversationID)
	case VerbConversations:
		return b.listConversations(ctx, user)
	default:
		return Reply{Text: msgUnknownAction}
	}
}

func (b *Bot) createGame(ctx context.Context, user int64) Reply {
	const attempts = 5
	for range attempts {
		game := store.Game{
			ID:        store.NewGameID(),
			OwnerID:   user,
			Status:    store.StatusActive,
			CreatedAt: b.now(),
		}
		err := b.store.CreateGame(ctx, game)
		if errors.Is(err, store.ErrGameExists) {
			continue
		}
		if err != nil {
			return b.failure("create game", err, zap.Int64("user_id", user))
		}
		b.record(ctx, store.Event{GameID: game.ID, UserID: user, Type: store.EventGameCreated, At: game.CreatedAt})
		b.logger.Info("game created", zap.String("game_id", game.ID), zap.Int64("user_id", user))
		return renderCreated(game.ID)
	}
	return b.failure("create game", apperr.Exhausted("no free game id"), zap.Int64("user_id", user))
}

func (b *Bot) roster(ctx context.Context, user int64, gameID string) Reply {
	game, err := b.store.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return Reply{Text: msgGameNotFound}
	}
	if err != nil {
		return b.failure("load game", err, zap.String("game_id", gameID))
	}
	names, err := b.store.ParticipantNames(ctx, gameID)
	if err != nil {
		return b.failure("load participants", err, zap.String("game_id", gameID))
	}
	b.logger.Debug("roster checked", zap.String("game_id", gameID), zap.Int64("user_id", user), zap.Int("participants", len(names)))
	return renderRoster(game, names)
}

func (b *Bot) listOwnedGames(ctx context.Context, user int64) Reply {
	games, err := b.store.ListOwnedGames(ctx, user, store.StatusActive)
	if err != nil {
		return b.failure("list owned games", err, zap.Int64("user_id", user))
	}
	if len(games) == 0 {
		return Reply{Text: msgNoOwnedGames}
	}
	return renderOwnedGames(games)
}

func (b *Bot) listRecentGames(ctx context.Context, user int64) Reply {
	games, err := b.store.ListUserGames(ctx, user, recentGamesLimit)
	if err != nil {
		return b.failure("list user games", err, zap.Int64("user_id", user))
	}
	if len(games) == 0 {
		return Reply{Text: msgNoGames}
	}
	return renderRecentGames(games)
}

func (b *Bot) listConversations(ctx context.Context, user int64) Reply {
	summaries, err := b.store.ListConversations(ctx, user)
	if err != nil {
		return b.failure("list conversations", err, zap.Int64("user_id", user))
	}
	if len(summaries) == 0 {
		return Reply{Text: msgNoConversations}
	}
	return renderConversationList(summaries, user)
}

func (b *Bot) inbox(ctx context.Context, user int64) Reply {
	entries, err := b.store.ListInbox(ctx, user)
	if err != nil {
		return b.failure("list inbox", err, zap.Int64("user_id", user))
	}
	if len(entries) == 0 {
		return Reply{Text: msgEmptyInbox}
	}
	return renderInbox(entries, user)
}

func (b *Bot) openConversation(ctx context.Context, user int64, conversationID int64) Reply {
	view, err := b.store.GetConversation(ctx, conversationID, user)
	if errors.Is(err, store.ErrNotFound) {
		return Reply{Text: msgConversationGone}
	}
	if err != nil {
		return b.failure("open conversation", err, zap.Int64("conversation_id", conversationID))
	}
	messages, err := b.store.ListMessages(ctx, conversationID, conversationWindow)
	if err != nil {
		return b.failure("list messages", err, zap.Int64("conversation_id", conversationID))
	}
	return renderConversation(view, messages, user)
}

// record appends to the audit trail; a failure there never fails the request.
func (b *Bot) record(ctx context.Context, event store.Event) {
	if err := b.store.RecordEvent(ctx, event); err != nil {
		b.logger.Warn("record event failed",
			zap.String("game_id", event.GameID),
			zap.String("type", event.Type),
			zap.Error(err),
		)
	}
}

// failure logs a storage or internal error and returns the generic reply.
func (b *Bot) failure(op string, err error, fields ...zap.Field) Reply {
	fields = append(fields, zap.String("op", op), zap.String("code", string(apperr.CodeOf(err))), zap.Error(err))
	b.logger.Error("request failed", fields...)
	return Reply{Text: msgGenericFailure}
}
