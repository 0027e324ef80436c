package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the top-level isolation boundary. Every user and chat belongs to
// exactly one tenant and nothing crosses tenants.
type Tenant struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type User struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Chat is a conversation owned by its creator. Only the creator may rename or
// delete it; CreatedAt never changes after insert.
type Chat struct {
	ID        int64     `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	CreatorID uuid.UUID `json:"creator_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership is the (user, chat) pair. Its existence is the only thing that
// lets a user read or write a chat's messages.
type Membership struct {
	UserID   uuid.UUID `json:"user_id"`
	ChatID   int64     `json:"chat_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Message uses a bigserial id, so a higher id is always a newer message.
// That makes the id usable as a pagination cursor.
type Message struct {
	ID       int64     `json:"id"`
	ChatID   int64     `json:"chat_id"`
	SenderID uuid.UUID `json:"sender_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
}
