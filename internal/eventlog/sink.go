//go:generate go run go.uber.org/mock/mockgen -source=sink.go -destination=../mocks/mock_sink.go -package=mocks

// Package eventlog mirrors every published chat event to a durable log for
// downstream consumers (search indexing, analytics, audit). The mirror is
// best effort and never affects the realtime path.
package eventlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/broadcast"
)

// Record is the JSON document written for one event.
type Record struct {
	Event    string    `json:"event"`
	ChatID   int64     `json:"chat_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	ActorID  uuid.UUID `json:"actor_id"`
	Payload  any       `json:"payload"`
	At       time.Time `json:"at"`
}

func NewRecord(ev broadcast.Event, tenantID, actorID uuid.UUID, at time.Time) Record {
	return Record{
		Event:    ev.Name(),
		ChatID:   ev.ChatID(),
		TenantID: tenantID,
		ActorID:  actorID,
		Payload:  ev.Payload(),
		At:       at.UTC(),
	}
}

type Sink interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// Nop discards everything. It is used when KAFKA_BROKERS is empty.
type Nop struct{}

func (Nop) Append(context.Context, Record) error { return nil }
func (Nop) Close() error                         { return nil }
