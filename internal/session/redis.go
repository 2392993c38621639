package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 10 * time.Millisecond
)

// ErrLockLost means the slot lock expired while a transition was running and
// another writer may have taken it; the transition's result is discarded.
var ErrLockLost = errors.New("session lock lost")

var refreshLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// saveIfLocked writes the slot only while the caller still owns the lock. An
// empty value deletes the slot.
var saveIfLocked = redis.NewScript(`
if redis.call("get", KEYS[2]) ~= ARGV[1] then
	return -1
end
if ARGV[2] == "" then
	redis.call("del", KEYS[1])
else
	redis.call("set", KEYS[1], ARGV[2], "PX", ARGV[3])
end
return 1
`)

var releaseLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisStore shares session slots between bot processes. Each slot is guarded
// by a lock key holding a random token; the slot itself expires after idleTTL.
// The lock is extended every lockRefresh while a transition runs, so storage
// calls inside it need no deadline; the final write is fenced on the token.
type RedisStore struct {
	rdb         *redis.Client
	prefix      string
	idleTTL     time.Duration
	lockTTL     time.Duration
	lockRefresh time.Duration
	lockRetry   time.Duration
}

func NewRedisStore(rdb *redis.Client, idleTTL time.Duration) *RedisStore {
	return &RedisStore{
		rdb:         rdb,
		prefix:      "session:",
		idleTTL:     idleTTL,
		lockTTL:     defaultLockTTL,
		lockRefresh: defaultLockTTL / 3,
		lockRetry:   defaultLockRetry,
	}
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (State, error) {
	var current State
	err := s.Update(ctx, userID, func(state State) (State, error) {
		current = state
		return state, nil
	})
	return current, err
}

func (s *RedisStore) Set(ctx context.Context, userID int64, state State) error {
	return s.Update(ctx, userID, func(State) (State, error) {
		return state, nil
	})
}

func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	return s.Set(ctx, userID, Idle())
}

func (s *RedisStore) Update(ctx context.Context, userID int64, fn UpdateFunc) error {
	key := s.key(userID)
	lockKey := key + ":lock"
	token, err := s.lock(ctx, lockKey)
	if err != nil {
		return err
	}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.keepLock(ctx, lockKey, token, stop)
	}()
	defer func() {
		close(stop)
		wg.Wait()
		// The caller's context may already be done; the lock must still go.
		_ = releaseLock.Run(context.WithoutCancel(ctx), s.rdb, []string{lockKey}, token).Err()
	}()

	current, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.save(ctx, key, lockKey, token, next)
}

// keepLock extends the lock until stop closes or the lock is gone.
func (s *RedisStore) keepLock(ctx context.Context, lockKey, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(s.lockRefresh)
	defer ticker.Stop()
	ctx = context.WithoutCancel(ctx)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			extended, err := refreshLock.Run(ctx, s.rdb, []string{lockKey}, token, s.lockTTL.Milliseconds()).Int()
			if err == nil && extended == 0 {
				return
			}
		}
	}
}

func (s *RedisStore) key(userID int64) string {
	return fmt.Sprintf("%s%d", s.prefix, userID)
}

func (s *RedisStore) lock(ctx context.Context, lockKey string) (string, error) {
	token := uuid.NewString()
	ticker := time.NewTicker(s.lockRetry)
	defer ticker.Stop()
	for {
		ok, err := s.rdb.SetNX(ctx, lockKey, token, s.lockTTL).Result()
		if err != nil {
			return "", fmt.Errorf("session lock: %w", err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *RedisStore) load(ctx context.Context, key string) (State, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Idle(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("session load: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, fmt.Errorf("session decode: %w", err)
	}
	return state, nil
}

func (s *RedisStore) save(ctx context.Context, key, lockKey, token string, state State) error {
	var raw []byte
	if !state.IsIdle() {
		var err error
		if raw, err = json.Marshal(state); err != nil {
			return err
		}
	}
	written, err := saveIfLocked.Run(ctx, s.rdb, []string{key, lockKey}, token, string(raw), s.idleTTL.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	if written < 0 {
		return ErrLockLost
	}
	return nil
}
