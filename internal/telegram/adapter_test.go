package telegram

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gift-circle/internal/bot"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.sendErr
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type handlerFunc func(ctx context.Context, ev bot.Event) bot.Reply

func (f handlerFunc) Handle(ctx context.Context, ev bot.Event) bot.Reply {
	return f(ctx, ev)
}

func commandUpdate(userID int64, text string, commandLength int) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 10,
			From:      &tgbotapi.User{ID: userID},
			Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: commandLength}},
		},
	}
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 2,
		Message: &tgbotapi.Message{
			MessageID: 11,
			From:      &tgbotapi.User{ID: userID},
			Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
			Text:      text,
		},
	}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 3,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-1",
			From: &tgbotapi.User{ID: userID},
			Data: data,
			Message: &tgbotapi.Message{
				MessageID: 99,
				Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
			},
		},
	}
}

func TestEventFromUpdate(t *testing.T) {
	cases := []struct {
		name   string
		update tgbotapi.Update
		want   bot.Event
		ok     bool
	}{
		{
			name:   "command with args",
			update: commandUpdate(7, "/check abcd1234", len("/check")),
			want:   bot.CommandEvent(7, "check", "abcd1234"),
			ok:     true,
		},
		{
			name:   "command addressed to bot",
			update: commandUpdate(7, "/Join@SantaBot", len("/Join@SantaBot")),
			want:   bot.CommandEvent(7, "join", ""),
			ok:     true,
		},
		{
			name:   "free text",
			update: textUpdate(8, "Mrs Claus"),
			want:   bot.TextEvent(8, "Mrs Claus"),
			ok:     true,
		},
		{
			name:   "button",
			update: callbackUpdate(9, "open:12"),
			want:   bot.ActionEvent(9, "open:12"),
			ok:     true,
		},
		{
			name:   "empty message",
			update: textUpdate(8, ""),
		},
		{
			name:   "edited message only",
			update: tgbotapi.Update{EditedMessage: &tgbotapi.Message{Text: "x"}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := EventFromUpdate(tc.update)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestHandleUpdateSendsReplyWithKeyboard(t *testing.T) {
	req := require.New(t)
	api := &fakeAPI{}
	adapter := NewAdapter(api, handlerFunc(func(_ context.Context, ev bot.Event) bot.Reply {
		req.Equal(bot.EventCommand, ev.Kind)
		return bot.Reply{
			Text:    "created",
			Buttons: [][]bot.Button{{{Label: "Check", Action: bot.CheckAction("ABCD1234")}}},
		}
	}), zap.NewNop(), 4)

	adapter.HandleUpdate(context.Background(), commandUpdate(5, "/create", len("/create")))

	req.Len(api.sent, 1)
	msg, ok := api.sent[0].(tgbotapi.MessageConfig)
	req.True(ok)
	req.Equal(int64(5), msg.ChatID)
	req.Equal("created", msg.Text)
	markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	req.True(ok)
	req.Equal("check:ABCD1234", *markup.InlineKeyboard[0][0].CallbackData)
}

func TestHandleUpdateEmptyReplySendsNothing(t *testing.T) {
	api := &fakeAPI{}
	adapter := NewAdapter(api, handlerFunc(func(context.Context, bot.Event) bot.Reply {
		return bot.Reply{}
	}), zap.NewNop(), 1)

	adapter.HandleUpdate(context.Background(), textUpdate(5, "hello"))
	require.Empty(t, api.sent)
}

func TestHandleCallbackEditsMessage(t *testing.T) {
	req := require.New(t)
	api := &fakeAPI{}
	adapter := NewAdapter(api, handlerFunc(func(context.Context, bot.Event) bot.Reply {
		return bot.Reply{
			Text:    "Type your message",
			Notice:  "Type...",
			Buttons: [][]bot.Button{{{Label: "Back", Action: bot.ConversationsAction()}}},
		}
	}), zap.NewNop(), 1)

	adapter.HandleUpdate(context.Background(), callbackUpdate(6, "send:3"))

	req.Len(api.requests, 1)
	answer, ok := api.requests[0].(tgbotapi.CallbackConfig)
	req.True(ok)
	req.Equal("cb-1", answer.CallbackQueryID)
	req.Equal("Type...", answer.Text)

	req.Len(api.sent, 1)
	edit, ok := api.sent[0].(tgbotapi.EditMessageTextConfig)
	req.True(ok)
	req.Equal(99, edit.MessageID)
	req.Equal("Type your message", edit.Text)
	req.NotNil(edit.ReplyMarkup)
	req.Equal("conversations", *edit.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
}

func TestHandleUpdateRecoversPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	adapter := NewAdapter(&fakeAPI{}, handlerFunc(func(context.Context, bot.Event) bot.Reply {
		panic("nil map")
	}), zap.New(core), 1)

	require.NotPanics(t, func() {
		adapter.HandleUpdate(context.Background(), textUpdate(5, "hello"))
	})
	require.Equal(t, 1, logs.FilterMessage("update handler panicked").Len())
}

func TestNotify(t *testing.T) {
	req := require.New(t)
	api := &fakeAPI{}
	notifier := NewNotifier(api)

	req.NoError(notifier.Notify(context.Background(), 42, "ding"))
	msg := api.sent[0].(tgbotapi.MessageConfig)
	req.Equal(int64(42), msg.ChatID)
	req.Equal("ding", msg.Text)

	api.sendErr = errors.New("Forbidden: bot was blocked by the user")
	req.ErrorIs(notifier.Notify(context.Background(), 42, "ding"), api.sendErr)
}

func TestRunBoundsConcurrency(t *testing.T) {
	req := require.New(t)
	const limit = 3
	var inFlight, peak, handled atomic.Int32
	adapter := NewAdapter(&fakeAPI{}, handlerFunc(func(context.Context, bot.Event) bot.Reply {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		handled.Add(1)
		return bot.Reply{}
	}), zap.NewNop(), limit)

	updates := make(chan tgbotapi.Update)
	done := make(chan error, 1)
	go func() { done <- adapter.Run(context.Background(), updates) }()
	for i := range 20 {
		updates <- textUpdate(int64(i+1), "hi")
	}
	close(updates)

	req.NoError(<-done)
	req.Equal(int32(20), handled.Load())
	req.LessOrEqual(peak.Load(), int32(limit))
}

func TestRunDrainsQueuedUpdatesAfterCancel(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var handled, cancelled atomic.Int32
	adapter := NewAdapter(&fakeAPI{}, handlerFunc(func(ctx context.Context, ev bot.Event) bot.Reply {
		if ev.UserID == 1 {
			<-release
		}
		if ctx.Err() != nil {
			cancelled.Add(1)
		}
		handled.Add(1)
		return bot.Reply{Text: "ok"}
	}), zap.NewNop(), 1)

	updates := make(chan tgbotapi.Update, 5)
	done := make(chan error, 1)
	go func() { done <- adapter.Run(ctx, updates) }()

	updates <- textUpdate(1, "in flight")
	for i := range 5 {
		updates <- textUpdate(int64(i+2), "queued")
	}
	cancel()
	close(release)
	close(updates)

	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the channel closed")
	}
	req.Equal(int32(6), handled.Load())
	req.Zero(cancelled.Load())
	req.Empty(updates)
}

func TestWebhookURL(t *testing.T) {
	require.Equal(t, "https://bot.example.com/telegram/webhook/s3cret", WebhookURL("https://bot.example.com/", "s3cret"))
}
