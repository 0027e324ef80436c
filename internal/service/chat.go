package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/authz"
	"github.com/lalith-99/echochat/internal/broadcast"
	"github.com/lalith-99/echochat/internal/models"
	"github.com/lalith-99/echochat/internal/presence"
	"github.com/lalith-99/echochat/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MaxChatNameLength is counted in characters, not bytes.
const MaxChatNameLength = 100

type ChatService struct {
	chats    repository.ChatRepository
	guard    *authz.Guard
	notifier *Notifier
	presence presence.Tracker
	logger   *zap.Logger
}

func NewChatService(
	store repository.Store,
	guard *authz.Guard,
	notifier *Notifier,
	tracker presence.Tracker,
	logger *zap.Logger,
) *ChatService {
	if tracker == nil {
		tracker = presence.Nop{}
	}
	return &ChatService{
		chats:    store.Chats,
		guard:    guard,
		notifier: notifier,
		presence: tracker,
		logger:   logger,
	}
}

func normalizeChatName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validation("chat name is required")
	}
	if utf8.RuneCountInString(name) > MaxChatNameLength {
		return "", apperr.Validation("chat name must be at most %d characters", MaxChatNameLength)
	}
	return name, nil
}

// List returns the chats the caller belongs to that match filter.
func (s *ChatService) List(ctx context.Context, id auth.Identity, filter repository.ChatFilter) (_ []models.Chat, err error) {
	ctx, span := tracer.Start(ctx, "ChatService.List")
	defer func() { finish(span, err) }()

	if !id.Valid() {
		return nil, apperr.ErrUnauthenticated
	}
	filter.MemberID = id.UserID
	chats, err := s.chats.List(ctx, id.TenantID, filter)
	if err != nil {
		return nil, apperr.Persistence("list chats", err)
	}
	return chats, nil
}

func (s *ChatService) Get(ctx context.Context, id auth.Identity, chatID int64) (_ *models.Chat, err error) {
	ctx, span := tracer.Start(ctx, "ChatService.Get")
	span.SetAttributes(attribute.Int64("chat.id", chatID))
	defer func() { finish(span, err) }()

	return s.guard.RequireRead(ctx, id, chatID)
}

// Create stores the chat with the caller as creator and first member. Both
// rows commit together; ChatCreated and UserJoined follow the commit.
func (s *ChatService) Create(ctx context.Context, id auth.Identity, name string) (_ *models.Chat, err error) {
	ctx, span := tracer.Start(ctx, "ChatService.Create")
	defer func() { finish(span, err) }()

	if !id.Valid() {
		return nil, apperr.ErrUnauthenticated
	}
	name, err = normalizeChatName(name)
	if err != nil {
		return nil, err
	}

	ch, err := s.chats.Create(ctx, id.TenantID, id.UserID, name)
	if err != nil {
		return nil, apperr.Persistence("create chat", err)
	}
	span.SetAttributes(attribute.Int64("chat.id", ch.ID))

	unlock := s.notifier.lock(ch.ID)
	defer unlock()
	s.notifier.publish(ctx, id, broadcast.ChatCreated{Chat: *ch}, id.UserID)
	s.notifier.publish(ctx, id, broadcast.UserJoined{Membership: models.Membership{
		UserID:   id.UserID,
		ChatID:   ch.ID,
		JoinedAt: ch.CreatedAt,
	}}, id.UserID)

	s.logger.Info("chat created", zap.Int64("chat_id", ch.ID), zap.String("creator_id", id.UserID.String()))
	return ch, nil
}

// Rename is owner only.
func (s *ChatService) Rename(ctx context.Context, id auth.Identity, chatID int64, name string) (_ *models.Chat, err error) {
	ctx, span := tracer.Start(ctx, "ChatService.Rename")
	span.SetAttributes(attribute.Int64("chat.id", chatID))
	defer func() { finish(span, err) }()

	if !id.Valid() {
		return nil, apperr.ErrUnauthenticated
	}
	name, err = normalizeChatName(name)
	if err != nil {
		return nil, err
	}

	unlock := s.notifier.lock(chatID)
	defer unlock()

	if _, err := s.guard.RequireOwner(ctx, id, chatID); err != nil {
		return nil, err
	}
	ch, err := s.chats.Rename(ctx, id.TenantID, chatID, name)
	if err != nil {
		return nil, apperr.Persistence("rename chat", err)
	}
	if ch == nil {
		return nil, apperr.NotFound("chat")
	}

	s.notifier.publish(ctx, id, broadcast.ChatUpdated{Chat: *ch})
	return ch, nil
}

// Delete is owner only. Memberships and messages go with the chat in the
// same transaction, and a single ChatDeleted is published. The chat's group
// is retired behind it: subscribers get ChatDeleted and nothing else.
func (s *ChatService) Delete(ctx context.Context, id auth.Identity, chatID int64) (err error) {
	ctx, span := tracer.Start(ctx, "ChatService.Delete")
	span.SetAttributes(attribute.Int64("chat.id", chatID))
	defer func() { finish(span, err) }()

	unlock := s.notifier.lock(chatID)
	defer unlock()

	if _, err := s.guard.RequireOwner(ctx, id, chatID); err != nil {
		return err
	}
	deleted, err := s.chats.Delete(ctx, id.TenantID, chatID)
	if err != nil {
		return apperr.Persistence("delete chat", err)
	}
	if !deleted {
		return apperr.NotFound("chat")
	}

	s.notifier.publish(ctx, id, broadcast.ChatDeleted{ID: chatID})
	s.notifier.retire(chatID)
	s.logger.Info("chat deleted", zap.Int64("chat_id", chatID), zap.String("owner_id", id.UserID.String()))
	return nil
}

// Online lists users with a live connection subscribed to the chat.
func (s *ChatService) Online(ctx context.Context, id auth.Identity, chatID int64) (_ []uuid.UUID, err error) {
	ctx, span := tracer.Start(ctx, "ChatService.Online")
	span.SetAttributes(attribute.Int64("chat.id", chatID))
	defer func() { finish(span, err) }()

	if _, err := s.guard.RequireRead(ctx, id, chatID); err != nil {
		return nil, err
	}
	users, err := s.presence.Online(ctx, chatID)
	if err != nil {
		return nil, apperr.Persistence("load presence", err)
	}
	return users, nil
}
