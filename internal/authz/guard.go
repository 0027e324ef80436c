// Package authz decides who may read, write and administer a chat. Every
// check reads the store at call time; nothing is cached between calls, so
// a revoked membership takes effect on the next request.
package authz

import (
	"context"
	"fmt"

	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/models"
	"github.com/lalith-99/echochat/internal/repository"
)

type Guard struct {
	chats    repository.ChatRepository
	members  repository.MembershipRepository
	messages repository.MessageRepository
}

func NewGuard(store repository.Store) *Guard {
	return &Guard{
		chats:    store.Chats,
		members:  store.Memberships,
		messages: store.Messages,
	}
}

func authenticated(id auth.Identity) error {
	if !id.Valid() {
		return fmt.Errorf("%w: no caller identity", apperr.ErrUnauthenticated)
	}
	return nil
}

// CanRead reports whether the caller may see chatID and its messages.
// It requires a membership row.
func (g *Guard) CanRead(ctx context.Context, id auth.Identity, chatID int64) (bool, error) {
	if err := authenticated(id); err != nil {
		return false, err
	}
	ch, err := g.chats.GetByID(ctx, id.TenantID, chatID)
	if err != nil {
		return false, apperr.Persistence("load chat", err)
	}
	if ch == nil {
		return false, nil
	}
	ok, err := g.members.IsMember(ctx, chatID, id.UserID)
	if err != nil {
		return false, apperr.Persistence("check membership", err)
	}
	return ok, nil
}

// CanWrite reports whether the caller may post to chatID. Posting has the
// same requirement as reading.
func (g *Guard) CanWrite(ctx context.Context, id auth.Identity, chatID int64) (bool, error) {
	return g.CanRead(ctx, id, chatID)
}

func (g *Guard) IsOwner(ctx context.Context, id auth.Identity, chatID int64) (bool, error) {
	if err := authenticated(id); err != nil {
		return false, err
	}
	ch, err := g.chats.GetByID(ctx, id.TenantID, chatID)
	if err != nil {
		return false, apperr.Persistence("load chat", err)
	}
	return ch != nil && ch.CreatorID == id.UserID, nil
}

// IsSender reports whether the caller wrote messageID. Current membership
// does not matter.
func (g *Guard) IsSender(ctx context.Context, id auth.Identity, messageID int64) (bool, error) {
	if err := authenticated(id); err != nil {
		return false, err
	}
	msg, err := g.messages.GetByID(ctx, messageID)
	if err != nil {
		return false, apperr.Persistence("load message", err)
	}
	return msg != nil && msg.SenderID == id.UserID, nil
}

// RequireRead returns the chat if the caller may read it. A chat the caller
// cannot see is reported as not found so its existence does not leak.
func (g *Guard) RequireRead(ctx context.Context, id auth.Identity, chatID int64) (*models.Chat, error) {
	if err := authenticated(id); err != nil {
		return nil, err
	}
	ch, err := g.chats.GetByID(ctx, id.TenantID, chatID)
	if err != nil {
		return nil, apperr.Persistence("load chat", err)
	}
	if ch == nil {
		return nil, apperr.NotFound("chat")
	}
	ok, err := g.members.IsMember(ctx, chatID, id.UserID)
	if err != nil {
		return nil, apperr.Persistence("check membership", err)
	}
	if !ok {
		return nil, apperr.NotFound("chat")
	}
	return ch, nil
}

// RequireWrite returns the chat if the caller may post to it. Unlike
// RequireRead a non-member gets ErrForbidden.
func (g *Guard) RequireWrite(ctx context.Context, id auth.Identity, chatID int64) (*models.Chat, error) {
	if err := authenticated(id); err != nil {
		return nil, err
	}
	ch, err := g.chats.GetByID(ctx, id.TenantID, chatID)
	if err != nil {
		return nil, apperr.Persistence("load chat", err)
	}
	if ch == nil {
		return nil, apperr.NotFound("chat")
	}
	ok, err := g.members.IsMember(ctx, chatID, id.UserID)
	if err != nil {
		return nil, apperr.Persistence("check membership", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: not a member of chat %d", apperr.ErrForbidden, chatID)
	}
	return ch, nil
}

// RequireOwner returns the chat if the caller created it.
func (g *Guard) RequireOwner(ctx context.Context, id auth.Identity, chatID int64) (*models.Chat, error) {
	if err := authenticated(id); err != nil {
		return nil, err
	}
	ch, err := g.chats.GetByID(ctx, id.TenantID, chatID)
	if err != nil {
		return nil, apperr.Persistence("load chat", err)
	}
	if ch == nil {
		return nil, apperr.NotFound("chat")
	}
	if ch.CreatorID != id.UserID {
		return nil, fmt.Errorf("%w: only the creator may change chat %d", apperr.ErrForbidden, chatID)
	}
	return ch, nil
}

// RequireSender returns the message if the caller sent it. Messages in
// another tenant's chats are not found.
func (g *Guard) RequireSender(ctx context.Context, id auth.Identity, messageID int64) (*models.Message, error) {
	if err := authenticated(id); err != nil {
		return nil, err
	}
	msg, err := g.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, apperr.Persistence("load message", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("message")
	}
	ch, err := g.chats.GetByID(ctx, id.TenantID, msg.ChatID)
	if err != nil {
		return nil, apperr.Persistence("load chat", err)
	}
	if ch == nil {
		return nil, apperr.NotFound("message")
	}
	if msg.SenderID != id.UserID {
		return nil, fmt.Errorf("%w: message %d belongs to another user", apperr.ErrForbidden, messageID)
	}
	return msg, nil
}
