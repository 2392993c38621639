// Package assign builds the gift circle: a single directed cycle through every
// participant of a game.
package assign

import (
	"math/rand/v2"

	"gift-circle/internal/apperr"
)

const DefaultMaxAttempts = 100

var ErrExhausted = apperr.Exhausted("could not build a valid gift circle")

// Edge says Giver buys a gift for Receiver.
type Edge struct {
	Giver    int64
	Receiver int64
}

// Engine shuffles participants and links each one to its successor.
type Engine struct {
	maxAttempts int
	intN        func(n int) int
}

type Option func(*Engine)

// WithMaxAttempts bounds the number of reshuffles before giving up.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithSource replaces the random source; intN must return a value in [0, n).
func WithSource(intN func(n int) int) Option {
	return func(e *Engine) {
		if intN != nil {
			e.intN = intN
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		maxAttempts: DefaultMaxAttempts,
		intN:        rand.IntN,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Circle returns one edge per participant, giver[i] -> receiver[(i+1) mod n]
// over a uniformly shuffled order. Callers must pass at least two ids.
func (e *Engine) Circle(participants []int64) ([]Edge, error) {
	n := len(participants)
	if n < 2 {
		return nil, ErrExhausted
	}
	order := make([]int64, n)
	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		copy(order, participants)
		e.shuffle(order)
		if edges, ok := successorEdges(order); ok {
			return edges, nil
		}
	}
	return nil, ErrExhausted
}

// shuffle is Fisher-Yates over the engine's source.
func (e *Engine) shuffle(ids []int64) {
	for i := len(ids) - 1; i > 0; i-- {
		j := e.intN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

// successorEdges rejects any order that would make someone their own recipient.
// Only duplicate ids can trigger that.
func successorEdges(order []int64) ([]Edge, bool) {
	edges := make([]Edge, 0, len(order))
	for i, giver := range order {
		receiver := order[(i+1)%len(order)]
		if giver == receiver {
			return nil, false
		}
		edges = append(edges, Edge{Giver: giver, Receiver: receiver})
	}
	return edges, true
}
