package bot

import (
	"context"
	"errors"

	"gift-circle/internal/apperr"
	"gift-circle/internal/assign"
	"gift-circle/internal/store"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

var errOneParticipant = apperr.FailedPrecondition("at least two participants are required")

// finishGame closes a game the caller owns. The store's conditional
// active->finished transition is the only serialisation point: of two
// concurrent presses exactly one runs the assignment, the other sees the game
// already finished.
func (b *Bot) finishGame(ctx context.Context, user int64, gameID string) Reply {
	game, err := b.store.GetGame(ctx, gameID)
	if errors.Is(err, store.ErrNotFound) {
		return Reply{Text: msgFinishDenied}
	}
	if err != nil {
		return b.failure("load game", err, zap.String("game_id", gameID))
	}
	if game.OwnerID != user || !game.Active() {
		return Reply{Text: msgFinishDenied}
	}

	var roster []store.Participant
	plan := func(participants []store.Participant) ([]store.Assignment, error) {
		roster = participants
		switch len(participants) {
		case 0:
			return nil, nil
		case 1:
			return nil, errOneParticipant
		}
		ids := lo.Map(participants, func(p store.Participant, _ int) int64 { return p.UserID })
		edges, err := b.engine.Circle(ids)
		if err != nil {
			return nil, err
		}
		return lo.Map(edges, func(e assign.Edge, _ int) store.Assignment {
			return store.Assignment{GiverID: e.Giver, ReceiverID: e.Receiver}
		}), nil
	}

	finishedAt := b.now()
	conversations, err := b.store.FinishGame(ctx, gameID, finishedAt, plan)
	switch {
	case errors.Is(err, errOneParticipant):
		return Reply{Text: msgOneParticipant}
	case errors.Is(err, assign.ErrExhausted):
		b.logger.Warn("assignment exhausted", zap.String("game_id", gameID), zap.Int("participants", len(roster)))
		return Reply{Text: msgExhausted}
	case errors.Is(err, store.ErrAlreadyFinished):
		return Reply{Text: msgAlreadyFinished}
	case errors.Is(err, store.ErrNotFound):
		return Reply{Text: msgFinishDenied}
	case err != nil:
		return b.failure("finish game", err, zap.String("game_id", gameID))
	}

	b.record(ctx, store.Event{
		GameID: gameID,
		UserID: user,
		Type:   store.EventGameFinished,
		Payload: map[string]any{
			"participants":  len(roster),
			"conversations": len(conversations),
		},
		At: finishedAt,
	})
	b.logger.Info("game finished", zap.String("game_id", gameID), zap.Int("participants", len(roster)))

	if len(conversations) == 0 {
		return Reply{Text: msgEmptyFinished}
	}
	b.announceAssignments(ctx, gameID, roster, conversations)
	return renderFinished(gameID, len(roster))
}

// announceAssignments tells every giver whom they gift. A failed send is
// logged; the assignment is already stored and visible through /chat.
func (b *Bot) announceAssignments(ctx context.Context, gameID string, roster []store.Participant, conversations []store.Conversation) {
	names := lo.SliceToMap(roster, func(p store.Participant) (int64, string) { return p.UserID, p.DisplayName })
	for _, c := range conversations {
		if err := b.notifier.Notify(ctx, c.GiverID, assignmentText(gameID, names[c.ReceiverID])); err != nil {
			b.logger.Warn("assignment notification failed",
				zap.String("game_id", gameID),
				zap.Int64("user_id", c.GiverID),
				zap.Error(err),
			)
		}
	}
}
