//go:generate go run go.uber.org/mock/mockgen -source=presence.go -destination=../mocks/mock_presence.go -package=mocks

// Package presence tracks which users have a live realtime connection
// subscribed to a chat. It is informational only and never authorizes.
package presence

import (
	"context"

	"github.com/google/uuid"
)

type Tracker interface {
	// Join records connID as watching chatID. Calling it again refreshes
	// the entry.
	Join(ctx context.Context, chatID int64, connID string, userID uuid.UUID) error
	Leave(ctx context.Context, chatID int64, connID string) error
	// Online returns the distinct users watching chatID.
	Online(ctx context.Context, chatID int64) ([]uuid.UUID, error)
}

// Nop tracks nothing. It is used when REDIS_URL is empty.
type Nop struct{}

func (Nop) Join(context.Context, int64, string, uuid.UUID) error { return nil }
func (Nop) Leave(context.Context, int64, string) error           { return nil }
func (Nop) Online(context.Context, int64) ([]uuid.UUID, error)   { return []uuid.UUID{}, nil }
