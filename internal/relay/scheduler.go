// Package relay delivers relay notifications after a randomized delay.
package relay

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMinDelay = 5 * time.Minute
	DefaultMaxDelay = 15 * time.Minute
)

// Scheduler arranges one deferred notification per relayed message. Pending
// notifications live only in process timers and are lost on restart; the
// message itself is already stored by the time Schedule is called.
type Scheduler struct {
	notifier   Notifier
	logger     *zap.Logger
	minMinutes int
	maxMinutes int
	intN       func(n int) int
	afterFunc  func(d time.Duration, f func())
	pending    atomic.Int64
}

type Option func(*Scheduler)

// WithWindow sets the delay window. Both bounds are truncated to whole
// minutes and the upper bound is raised to the lower one when inverted.
func WithWindow(minDelay, maxDelay time.Duration) Option {
	return func(s *Scheduler) {
		s.minMinutes = int(minDelay / time.Minute)
		s.maxMinutes = int(maxDelay / time.Minute)
	}
}

// WithSource replaces the random source; intN must return a value in [0, n).
func WithSource(intN func(n int) int) Option {
	return func(s *Scheduler) {
		s.intN = intN
	}
}

// WithAfterFunc replaces time.AfterFunc.
func WithAfterFunc(afterFunc func(d time.Duration, f func())) Option {
	return func(s *Scheduler) {
		s.afterFunc = afterFunc
	}
}

func NewScheduler(notifier Notifier, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		notifier:   notifier,
		logger:     logger,
		minMinutes: int(DefaultMinDelay / time.Minute),
		maxMinutes: int(DefaultMaxDelay / time.Minute),
		intN:       rand.IntN,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.minMinutes < 0 {
		s.minMinutes = 0
	}
	if s.maxMinutes < s.minMinutes {
		s.maxMinutes = s.minMinutes
	}
	return s
}

// Schedule returns as soon as the notification is armed, with the delay that
// was picked. A failed delivery is logged and dropped.
func (s *Scheduler) Schedule(recipient int64, text string) time.Duration {
	delay := s.nextDelay()
	s.pending.Add(1)
	s.afterFunc(delay, func() {
		defer s.pending.Add(-1)
		s.deliver(recipient, text, delay)
	})
	s.logger.Info("relay notification scheduled",
		zap.Int64("user_id", recipient),
		zap.Duration("delay", delay),
	)
	return delay
}

// Pending reports how many notifications are armed but not yet delivered.
func (s *Scheduler) Pending() int64 {
	return s.pending.Load()
}

func (s *Scheduler) nextDelay() time.Duration {
	minutes := s.minMinutes + s.intN(s.maxMinutes-s.minMinutes+1)
	return time.Duration(minutes) * time.Minute
}

func (s *Scheduler) deliver(recipient int64, text string, delay time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("relay notification panicked",
				zap.Int64("user_id", recipient),
				zap.Any("panic", r),
			)
		}
	}()
	if err := s.notifier.Notify(context.Background(), recipient, text); err != nil {
		s.logger.Warn("relay notification dropped",
			zap.Int64("user_id", recipient),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		return
	}
	s.logger.Debug("relay notification delivered", zap.Int64("user_id", recipient))
}
