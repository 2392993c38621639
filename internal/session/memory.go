package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. Idle slots are dropped as soon as no
// goroutine holds them.
type MemoryStore struct {
	mu    sync.Mutex
	slots map[int64]*slot
	now   func() time.Time
}

type slot struct {
	mu      sync.Mutex
	state   State
	touched time.Time
	refs    int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots: make(map[int64]*slot),
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, userID int64) (State, error) {
	var current State
	err := s.Update(ctx, userID, func(state State) (State, error) {
		current = state
		return state, nil
	})
	return current, err
}

func (s *MemoryStore) Set(ctx context.Context, userID int64, state State) error {
	return s.Update(ctx, userID, func(State) (State, error) {
		return state, nil
	})
}

func (s *MemoryStore) Clear(ctx context.Context, userID int64) error {
	return s.Set(ctx, userID, Idle())
}

func (s *MemoryStore) Update(ctx context.Context, userID int64, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry := s.acquire(userID)
	defer s.release(userID, entry)

	current := entry.state
	if current.Kind == "" {
		current = Idle()
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	entry.state = next
	entry.touched = s.now()
	return nil
}

// Len reports how many users currently hold a non-idle session.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Sweep drops sessions untouched since cutoff and returns how many were dropped.
// Slots held by an in-flight Update are skipped.
func (s *MemoryStore) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for userID, entry := range s.slots {
		if entry.refs == 0 && entry.touched.Before(cutoff) {
			delete(s.slots, userID)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) acquire(userID int64) *slot {
	s.mu.Lock()
	entry, ok := s.slots[userID]
	if !ok {
		entry = &slot{state: Idle(), touched: s.now()}
		s.slots[userID] = entry
	}
	entry.refs++
	s.mu.Unlock()

	entry.mu.Lock()
	return entry
}

func (s *MemoryStore) release(userID int64, entry *slot) {
	entry.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry.refs--
	// refs only grows under s.mu, so at zero no other goroutine can reach the slot.
	if entry.refs == 0 && entry.state.IsIdle() {
		delete(s.slots, userID)
	}
}
