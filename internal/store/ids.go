package store

import (
	"strings"

	"github.com/google/uuid"
)

// NewGameID returns a short shareable code: the first group of a random UUID,
// upper-cased.
func NewGameID() string {
	id := uuid.NewString()
	head, _, _ := strings.Cut(id, "-")
	return strings.ToUpper(head)
}

// NormalizeGameID canonicalises user input into the stored form.
func NormalizeGameID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
