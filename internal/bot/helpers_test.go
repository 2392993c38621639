package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"gift-circle/internal/assign"
	"gift-circle/internal/mocks"
	"gift-circle/internal/session"
	"gift-circle/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

const (
	alice int64 = 101
	bob   int64 = 202
	carol int64 = 303
	dave  int64 = 404
)

var testNow = time.Date(2025, 12, 1, 18, 0, 0, 0, time.UTC)

type scheduledNotification struct {
	recipient int64
	text      string
}

// fakeScheduler records notifications instead of arming timers.
type fakeScheduler struct {
	mu    sync.Mutex
	delay time.Duration
	sent  []scheduledNotification
}

func (f *fakeScheduler) Schedule(recipient int64, text string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, scheduledNotification{recipient: recipient, text: text})
	return f.delay
}

func (f *fakeScheduler) all() []scheduledNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduledNotification(nil), f.sent...)
}

type harness struct {
	bot      *Bot
	store    *store.MemoryStore
	sessions *session.MemoryStore
	relay    *fakeScheduler
	notifier *mocks.MockNotifier
}

func newHarness(t *testing.T, engineOpts ...assign.Option) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		store:    store.NewMemoryStore(),
		sessions: session.NewMemoryStore(),
		relay:    &fakeScheduler{delay: 7 * time.Minute},
		notifier: mocks.NewMockNotifier(ctrl),
	}
	h.bot = New(h.store, h.sessions, assign.NewEngine(engineOpts...), h.relay, h.notifier, zap.NewNop(),
		WithClock(func() time.Time { return testNow }))
	return h
}

func (h *harness) command(user int64, command, args string) Reply {
	return h.bot.Handle(context.Background(), CommandEvent(user, command, args))
}

func (h *harness) text(user int64, text string) Reply {
	return h.bot.Handle(context.Background(), TextEvent(user, text))
}

func (h *harness) press(user int64, action Action) Reply {
	return h.bot.Handle(context.Background(), ActionEvent(user, action.Token()))
}

func (h *harness) state(t *testing.T, user int64) session.State {
	t.Helper()
	st, err := h.sessions.Get(context.Background(), user)
	require.NoError(t, err)
	return st
}

// createGame runs /create for owner and returns the new game id.
func (h *harness) createGame(t *testing.T, owner int64) string {
	t.Helper()
	reply := h.command(owner, "create", "")
	require.Len(t, reply.Buttons, 1)
	gameID := reply.Buttons[0][0].Action.GameID
	require.NotEmpty(t, gameID)
	return gameID
}

// join walks user through the join flow under name.
func (h *harness) join(t *testing.T, gameID string, user int64, name string) {
	t.Helper()
	require.Equal(t, msgJoinPrompt, h.command(user, "join", "").Text)
	require.Equal(t, msgNamePrompt, h.text(user, gameID).Text)
	require.Contains(t, h.text(user, name).Text, "Successfully joined game "+gameID)
	require.True(t, h.state(t, user).IsIdle())
}

// pickSource replays fixed Fisher-Yates picks.
func pickSource(picks ...int) assign.Option {
	return assign.WithSource(func(n int) int {
		pick := picks[0]
		picks = picks[1:]
		return pick
	})
}
