package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/models"
)

// Every method takes a context because every implementation may do I/O.
// Lookups return nil, nil when the row does not exist; callers translate
// that into a not-found error at the service layer.

// ChatFilter narrows a chat listing. Zero values mean "no constraint".
// MemberID is always set by the service so results never include chats the
// caller does not belong to.
type ChatFilter struct {
	MemberID    uuid.UUID
	CreatorID   uuid.UUID
	Name        string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// MessageFilter narrows a message listing. Before is an id cursor: 0 starts
// from the newest message.
type MessageFilter struct {
	MemberID uuid.UUID
	ChatID   int64
	SenderID uuid.UUID
	SentFrom *time.Time
	SentTo   *time.Time
	Before   int64
	Limit    int
}

// MembershipFilter narrows a membership listing to chats MemberID belongs to.
type MembershipFilter struct {
	MemberID uuid.UUID
	UserID   uuid.UUID
	ChatID   int64
}

// ChatRepository defines the contract for chat data operations.
type ChatRepository interface {
	// Create inserts the chat and the creator's membership in one
	// transaction. Either both rows exist afterwards or neither does.
	Create(ctx context.Context, tenantID, creatorID uuid.UUID, name string) (*models.Chat, error)

	// GetByID returns a chat within a tenant, or nil, nil.
	GetByID(ctx context.Context, tenantID uuid.UUID, chatID int64) (*models.Chat, error)

	// List returns chats in the tenant matching the filter, newest first.
	// Returns an empty slice, never nil.
	List(ctx context.Context, tenantID uuid.UUID, filter ChatFilter) ([]models.Chat, error)

	// Rename updates the name and returns the new row, or nil, nil.
	Rename(ctx context.Context, tenantID uuid.UUID, chatID int64, name string) (*models.Chat, error)

	// Delete removes the chat with its memberships and messages in one
	// transaction. Reports whether a chat row was removed.
	Delete(ctx context.Context, tenantID uuid.UUID, chatID int64) (bool, error)
}

// MembershipRepository handles who belongs to which chat.
type MembershipRepository interface {
	// AddMember is idempotent. created is false when the row already existed.
	AddMember(ctx context.Context, chatID int64, userID uuid.UUID) (m *models.Membership, created bool, err error)

	// RemoveMember returns the row it deleted, or nil, nil when there was
	// none. Callers publish the returned row, join time included.
	RemoveMember(ctx context.Context, chatID int64, userID uuid.UUID) (*models.Membership, error)

	List(ctx context.Context, filter MembershipFilter) ([]models.Membership, error)

	// IsMember is the hot-path check behind every read, send and subscribe.
	IsMember(ctx context.Context, chatID int64, userID uuid.UUID) (bool, error)
}

// MessageRepository handles chat message persistence.
type MessageRepository interface {
	// Create persists a message and returns it with ID and SentAt populated.
	Create(ctx context.Context, chatID int64, senderID uuid.UUID, content string) (*models.Message, error)

	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// List returns messages newest first.
	List(ctx context.Context, filter MessageFilter) ([]models.Message, error)

	// UpdateContent changes the content only and returns the new row, or nil, nil.
	UpdateContent(ctx context.Context, messageID int64, content string) (*models.Message, error)

	// Delete reports whether a row was removed.
	Delete(ctx context.Context, messageID int64) (bool, error)
}

// UserRepository handles user data.
type UserRepository interface {
	Create(ctx context.Context, tenantID uuid.UUID, email, displayName, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.User, error)
	// GetByEmail is global, not tenant scoped: it is what login uses.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

type TenantRepository interface {
	Create(ctx context.Context, name string) (*models.Tenant, error)
	GetByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	Chats       ChatRepository
	Memberships MembershipRepository
	Messages    MessageRepository
	Users       UserRepository
	Tenants     TenantRepository
}
