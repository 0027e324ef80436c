// Package memory is an in-process implementation of the repository
// contracts. It backs STORE_DRIVER=memory and the package tests. A single
// mutex makes every operation atomic, which gives the same all-or-nothing
// behaviour the Postgres store gets from transactions.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/models"
	"github.com/lalith-99/echochat/internal/repository"
)

// Operation names accepted by FailOn.
const (
	OpChatCreate       = "chats.create"
	OpChatRename       = "chats.rename"
	OpChatDelete       = "chats.delete"
	OpMembershipAdd    = "memberships.add"
	OpMembershipRemove = "memberships.remove"
	OpMessageCreate    = "messages.create"
	OpMessageUpdate    = "messages.update"
	OpMessageDelete    = "messages.delete"
)

type membershipKey struct {
	chatID int64
	userID uuid.UUID
}

type DB struct {
	mu sync.Mutex

	tenants     map[uuid.UUID]models.Tenant
	users       map[uuid.UUID]models.User
	chats       map[int64]models.Chat
	memberships map[membershipKey]models.Membership
	messages    map[int64]models.Message

	nextChatID    int64
	nextMessageID int64

	failures map[string]error
	now      func() time.Time
}

func New() *DB {
	return &DB{
		tenants:     make(map[uuid.UUID]models.Tenant),
		users:       make(map[uuid.UUID]models.User),
		chats:       make(map[int64]models.Chat),
		memberships: make(map[membershipKey]models.Membership),
		messages:    make(map[int64]models.Message),
		failures:    make(map[string]error),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Store returns the repositories backed by this database.
func (db *DB) Store() repository.Store {
	return repository.Store{
		Chats:       &ChatStore{db: db},
		Memberships: &MembershipStore{db: db},
		Messages:    &MessageStore{db: db},
		Users:       &UserStore{db: db},
		Tenants:     &TenantStore{db: db},
	}
}

// FailOn makes the next call of op return err without changing any state.
func (db *DB) FailOn(op string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures[op] = err
}

// takeFailure must be called with db.mu held.
func (db *DB) takeFailure(ops ...string) error {
	for _, op := range ops {
		if err, ok := db.failures[op]; ok {
			delete(db.failures, op)
			return err
		}
	}
	return nil
}

func (db *DB) isMember(chatID int64, userID uuid.UUID) bool {
	_, ok := db.memberships[membershipKey{chatID: chatID, userID: userID}]
	return ok
}

func (db *DB) memberChats(userID uuid.UUID) map[int64]struct{} {
	out := make(map[int64]struct{})
	for key := range db.memberships {
		if key.userID == userID {
			out[key.chatID] = struct{}{}
		}
	}
	return out
}

func within(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func sortChatsNewestFirst(chats []models.Chat) {
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].CreatedAt.Equal(chats[j].CreatedAt) {
			return chats[i].ID > chats[j].ID
		}
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
}

var (
	_ repository.ChatRepository       = (*ChatStore)(nil)
	_ repository.MembershipRepository = (*MembershipStore)(nil)
	_ repository.MessageRepository    = (*MessageStore)(nil)
	_ repository.UserRepository       = (*UserStore)(nil)
	_ repository.TenantRepository     = (*TenantStore)(nil)
)
