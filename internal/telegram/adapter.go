// Package telegram connects the bot to the Telegram Bot API: it turns
// updates into events, sends replies, and delivers relay notifications.
package telegram

import (
	"context"
	"fmt"
	"runtime/debug"

	"gift-circle/internal/bot"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// API is the part of *tgbotapi.BotAPI the adapter needs.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler answers one event.
type Handler interface {
	Handle(ctx context.Context, ev bot.Event) bot.Reply
}

type Adapter struct {
	api           API
	handler       Handler
	logger        *zap.Logger
	maxConcurrent int
}

func NewAdapter(api API, handler Handler, logger *zap.Logger, maxConcurrent int) *Adapter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Adapter{
		api:           api,
		handler:       handler,
		logger:        logger,
		maxConcurrent: maxConcurrent,
	}
}

// Run handles updates until the channel closes, with at most maxConcurrent
// updates in flight, and waits for the last of them before returning. Every
// update already received is handled: the owner of the channel stops the
// producer and closes it to shut down. Handlers get ctx without its
// cancellation so an update accepted before shutdown still completes.
func (a *Adapter) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	handlerCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(a.maxConcurrent)
	for update := range updates {
		g.Go(func() error {
			a.HandleUpdate(handlerCtx, update)
			return nil
		})
	}
	return g.Wait()
}

// HandleUpdate processes one update. A panic is logged and swallowed so one
// bad update cannot take the process down.
func (a *Adapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("update handler panicked",
				zap.Int("update_id", update.UpdateID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	ev, ok := EventFromUpdate(update)
	if !ok {
		return
	}
	reply := a.handler.Handle(ctx, ev)

	if cb := update.CallbackQuery; cb != nil {
		a.answerCallback(cb, reply)
		return
	}
	if reply.Empty() {
		return
	}
	msg := tgbotapi.NewMessage(update.Message.Chat.ID, reply.Text)
	if len(reply.Buttons) > 0 {
		msg.ReplyMarkup = keyboard(reply.Buttons)
	}
	if _, err := a.api.Send(msg); err != nil {
		a.logger.Warn("send reply failed", zap.Int64("user_id", ev.UserID), zap.Error(err))
	}
}

// answerCallback acknowledges the button press and replaces the message the
// button belonged to with the reply.
func (a *Adapter) answerCallback(cb *tgbotapi.CallbackQuery, reply bot.Reply) {
	if _, err := a.api.Request(tgbotapi.NewCallback(cb.ID, reply.Notice)); err != nil {
		a.logger.Debug("answer callback failed", zap.String("callback_id", cb.ID), zap.Error(err))
	}
	if reply.Empty() {
		return
	}

	var chattable tgbotapi.Chattable
	if cb.Message != nil {
		edit := tgbotapi.NewEditMessageText(cb.Message.Chat.ID, cb.Message.MessageID, reply.Text)
		if len(reply.Buttons) > 0 {
			markup := keyboard(reply.Buttons)
			edit.ReplyMarkup = &markup
		}
		chattable = edit
	} else {
		msg := tgbotapi.NewMessage(cb.From.ID, reply.Text)
		if len(reply.Buttons) > 0 {
			msg.ReplyMarkup = keyboard(reply.Buttons)
		}
		chattable = msg
	}
	if _, err := a.api.Send(chattable); err != nil {
		a.logger.Warn("send callback reply failed", zap.Int64("user_id", cb.From.ID), zap.Error(err))
	}
}

// Notifier implements relay.Notifier. Users talk to the bot in private
// chats, where the chat id equals the user id.
type Notifier struct {
	api API
}

func NewNotifier(api API) *Notifier {
	return &Notifier{api: api}
}

func (n *Notifier) Notify(_ context.Context, recipient int64, text string) error {
	if _, err := n.api.Send(tgbotapi.NewMessage(recipient, text)); err != nil {
		return fmt.Errorf("notify %d: %w", recipient, err)
	}
	return nil
}

// EventFromUpdate maps an update to a bot event; ok is false for updates the
// bot does not react to (edits, stickers, channel posts).
func EventFromUpdate(update tgbotapi.Update) (bot.Event, bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil {
			return bot.Event{}, false
		}
		return bot.ActionEvent(cb.From.ID, cb.Data), true
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return bot.Event{}, false
	}
	if msg.IsCommand() {
		return bot.CommandEvent(msg.From.ID, msg.Command(), msg.CommandArguments()), true
	}
	return bot.TextEvent(msg.From.ID, msg.Text), true
}

func keyboard(rows [][]bot.Button) tgbotapi.InlineKeyboardMarkup {
	markup := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Action.Token()))
		}
		markup = append(markup, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(markup...)
}
