package bot

import (
	"context"
	"errors"
	"time"

	"gift-circle/internal/session"
	"gift-circle/internal/store"

	"go.uber.org/zap"
)

// continueSession feeds free text to the user's pending flow. Text from a
// user with no pending flow is ignored.
func (b *Bot) continueSession(ctx context.Context, user int64, text string) Reply {
	var reply Reply
	err := b.sessions.Update(ctx, user, func(current session.State) (session.State, error) {
		if current.IsIdle() {
			return current, nil
		}
		var next session.State
		next, reply = b.step(ctx, user, current, text)
		return next, nil
	})
	if err != nil {
		return b.failure("session update", err, zap.Int64("user_id", user))
	}
	return reply
}

// step is the transition function: current state plus input gives the next
// state and the reply.
func (b *Bot) step(ctx context.Context, user int64, current session.State, text string) (session.State, Reply) {
	switch current.Kind {
	case session.KindAwaitingGameID:
		return b.receiveGameID(ctx, user, text)
	case session.KindAwaitingDisplayName:
		return b.receiveDisplayName(ctx, user, current, text)
	case session.KindAwaitingMessageBody:
		return b.receiveMessageBody(ctx, user, current, text)
	default:
		return session.Idle(), Reply{}
	}
}

// beginJoin starts the join flow. "/join CODE" skips the id prompt.
func (b *Bot) beginJoin(ctx context.Context, user int64, args string) Reply {
	var reply Reply
	err := b.sessions.Update(ctx, user, func(session.State) (session.State, error) {
		if args != "" {
			var next session.State
			next, reply = b.receiveGameID(ctx, user, args)
			return next, nil
		}
		reply = Reply{Text: msgJoinPrompt}
		return session.AwaitingGameID(), nil
	})
	if err != nil {
		return b.failure("session update", err, zap.Int64("user_id", user))
	}
	b.logger.Debug("join started", zap.Int64("user_id", user))
	return reply
}

func (b *Bot) cancel(ctx context.Context, user int64) Reply {
	reply := Reply{Text: msgNothingToCancel}
	err := b.sessions.Update(ctx, user, func(current session.State) (session.State, error) {
		if !current.IsIdle() {
			reply = Reply{Text: msgCancelled}
		}
		return session.Idle(), nil
	})
	if err != nil {
		return b.failure("session update", err, zap.Int64("user_id", user))
	}
	return reply
}

// beginSend arms the compose flow for a conversation the user belongs to.
func (b *Bot) beginSend(ctx context.Context, user int64, conversationID int64) Reply {
	var reply Reply
	err := b.sessions.Update(ctx, user, func(current session.State) (session.State, error) {
		_, err := b.store.GetConversation(ctx, conversationID, user)
		if errors.Is(err, store.ErrNotFound) {
			reply = Reply{Text: msgConversationGone}
			return session.Idle(), nil
		}
		if err != nil {
			reply = b.failure("open conversation", err, zap.Int64("conversation_id", conversationID))
			return session.Idle(), nil
		}
		reply = Reply{Text: msgTypeMessage, Notice: "Type your message..."}
		return session.AwaitingMessageBody(conversationID), nil
	})
	if err != nil {
		return b.failure("session update", err, zap.Int64("user_id", user))
	}
	return reply
}

func (b *Bot) receiveGameID(ctx context.Context, user int64, text string) (session.State, Reply) {
	gameID := store.NormalizeGameID(text)
	if gameID == "" {
		return session.Idle(), Reply{Text: msgInvalidGame}
	}
	game, err := b.store.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return session.Idle(), Reply{Text: msgInvalidGame}
	}
	if err != nil {
		return session.Idle(), b.failure("load game", err, zap.String("game_id", gameID))
	}
	if !game.Active() {
		return session.Idle(), Reply{Text: msgInvalidGame}
	}
	_, err = b.store.GetParticipant(ctx, gameID, user)
	if err == nil {
		return session.Idle(), Reply{Text: msgAlreadyJoined}
	}
	if !errors.Is(err, store.ErrNotFound) {
		return session.Idle(), b.failure("load participant", err, zap.String("game_id", gameID))
	}
	return session.AwaitingDisplayName(gameID), Reply{Text: msgNamePrompt}
}

func (b *Bot) receiveDisplayName(ctx context.Context, user int64, current session.State, text string) (session.State, Reply) {
	name, err := validateDisplayName(text)
	if err != nil {
		return current, Reply{Text: "❌ " + err.Error() + " Please try again:"}
	}
	gameID := current.GameID
	game, err := b.store.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return session.Idle(), Reply{Text: msgInvalidGame}
	}
	if err != nil {
		return session.Idle(), b.failure("load game", err, zap.String("game_id", gameID))
	}
	if !game.Active() {
		return session.Idle(), Reply{Text: msgInvalidGame}
	}

	joinedAt := b.now()
	err = b.store.AddParticipant(ctx, store.Participant{
		GameID:      gameID,
		UserID:      user,
		DisplayName: name,
		JoinedAt:    joinedAt,
	})
	switch {
	case errors.Is(err, store.ErrAlreadyJoined):
		return session.Idle(), Reply{Text: msgAlreadyJoined}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrGameNotActive):
		return session.Idle(), Reply{Text: msgInvalidGame}
	case err != nil:
		return session.Idle(), b.failure("add participant", err, zap.String("game_id", gameID), zap.Int64("user_id", user))
	}

	b.record(ctx, store.Event{
		GameID:  gameID,
		UserID:  user,
		Type:    store.EventParticipantJoined,
		Payload: map[string]any{"display_name": name},
		At:      joinedAt,
	})
	b.logger.Info("participant joined", zap.String("game_id", gameID), zap.Int64("user_id", user))
	return session.Idle(), renderJoined(gameID, name)
}

func (b *Bot) receiveMessageBody(ctx context.Context, user int64, current session.State, text string) (session.State, Reply) {
	body, err := validateMessageBody(text)
	if err != nil {
		return current, Reply{Text: "❌ " + err.Error() + " Please try again:"}
	}
	conversationID := current.ConversationID
	view, err := b.store.GetConversation(ctx, conversationID, user)
	if errors.Is(err, store.ErrNotFound) {
		return session.Idle(), Reply{Text: msgConversationGone}
	}
	if err != nil {
		return session.Idle(), b.failure("load conversation", err, zap.Int64("conversation_id", conversationID))
	}

	sentAt := b.now()
	message, err := b.store.AppendMessage(ctx, store.RelayMessage{
		ConversationID: conversationID,
		SenderID:       user,
		Body:           body,
		SentAt:         sentAt,
	})
	if err != nil {
		return session.Idle(), b.failure("append message", err, zap.Int64("conversation_id", conversationID))
	}

	recipient := view.Partner(user)
	delay := b.relay.Schedule(recipient, notificationText(view, user, body))
	b.record(ctx, store.Event{
		GameID: view.GameID,
		UserID: user,
		Type:   store.EventMessageRelayed,
		Payload: map[string]any{
			"conversation_id": conversationID,
			"message_id":      message.ID,
			"delay_seconds":   int(delay / time.Second),
		},
		At: sentAt,
	})
	b.logger.Info("message relayed",
		zap.Int64("conversation_id", conversationID),
		zap.String("game_id", view.GameID),
		zap.Int64("user_id", user),
		zap.Duration("delay", delay),
	)
	b.logger.Debug("message body", zap.String("preview", preview(body, 50)))
	return session.Idle(), renderScheduled(view.GameID, body, int(delay/time.Minute))
}
