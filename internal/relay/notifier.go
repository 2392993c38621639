//go:generate go run go.uber.org/mock/mockgen -source=notifier.go -destination=../mocks/mock_notifier.go -package=mocks
package relay

import "context"

// Notifier pushes a text to a user over the chat transport.
type Notifier interface {
	Notify(ctx context.Context, recipient int64, text string) error
}
