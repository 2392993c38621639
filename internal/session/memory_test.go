package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories lets the behavioural tests run against every backend.
var storeFactories = map[string]func(t *testing.T) Store{
	"memory": func(*testing.T) Store { return NewMemoryStore() },
	"redis":  func(t *testing.T) Store { return newTestRedisStore(t) },
}

func TestStore_Transitions(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			store := factory(t)

			state, err := store.Get(ctx, 42)
			req.NoError(err)
			req.True(state.IsIdle())

			req.NoError(store.Set(ctx, 42, AwaitingDisplayName("ABCD1234")))
			state, err = store.Get(ctx, 42)
			req.NoError(err)
			req.Equal(AwaitingDisplayName("ABCD1234"), state)

			other, err := store.Get(ctx, 43)
			req.NoError(err)
			req.True(other.IsIdle())

			req.NoError(store.Clear(ctx, 42))
			state, err = store.Get(ctx, 42)
			req.NoError(err)
			req.True(state.IsIdle())
		})
	}
}

func TestStore_UpdateErrorKeepsState(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			store := factory(t)
			req.NoError(store.Set(ctx, 7, AwaitingMessageBody(9)))

			boom := errors.New("boom")
			err := store.Update(ctx, 7, func(State) (State, error) {
				return Idle(), boom
			})
			req.ErrorIs(err, boom)

			state, err := store.Get(ctx, 7)
			req.NoError(err)
			req.Equal(AwaitingMessageBody(9), state)
		})
	}
}

func TestStore_ConcurrentUpdatesOfOneUserAreSerialised(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			store := factory(t)
			const writers = 25

			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := store.Update(ctx, 1, func(current State) (State, error) {
						return AwaitingMessageBody(current.ConversationID + 1), nil
					})
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			state, err := store.Get(ctx, 1)
			req.NoError(err)
			req.Equal(int64(writers), state.ConversationID)
		})
	}
}

func TestMemoryStore_UsersDoNotBlockEachOther(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	entered := make(chan struct{})
	releaseA := make(chan struct{})
	go func() {
		_ = store.Update(ctx, 1, func(State) (State, error) {
			close(entered)
			<-releaseA
			return AwaitingGameID(), nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		assert.NoError(t, store.Set(ctx, 2, AwaitingGameID()))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("user 2 waited on user 1")
	}
	close(releaseA)
}

func TestMemoryStore_IdleSlotsAreDropped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, 1)
	req.NoError(err)
	req.Equal(0, store.Len())

	req.NoError(store.Set(ctx, 1, AwaitingGameID()))
	req.Equal(1, store.Len())

	req.NoError(store.Clear(ctx, 1))
	req.Equal(0, store.Len())
}

func TestMemoryStore_Sweep(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	now := time.Date(2026, 12, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	req.NoError(store.Set(ctx, 1, AwaitingGameID()))
	now = now.Add(2 * time.Hour)
	req.NoError(store.Set(ctx, 2, AwaitingGameID()))

	removed := store.Sweep(now.Add(-time.Hour))
	req.Equal(1, removed)

	first, err := store.Get(ctx, 1)
	req.NoError(err)
	req.True(first.IsIdle())
	second, err := store.Get(ctx, 2)
	req.NoError(err)
	req.Equal(AwaitingGameID(), second)
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemoryStore().Set(ctx, 1, AwaitingGameID())
	require.ErrorIs(t, err, context.Canceled)
}
