package service

import (
	"context"
	"errors"
	"strings"

	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/authz"
	"github.com/lalith-99/echochat/internal/broadcast"
	"github.com/lalith-99/echochat/internal/models"
	"github.com/lalith-99/echochat/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

type MessageService struct {
	messages repository.MessageRepository
	guard    *authz.Guard
	notifier *Notifier
	logger   *zap.Logger
}

func NewMessageService(store repository.Store, guard *authz.Guard, notifier *Notifier, logger *zap.Logger) *MessageService {
	return &MessageService{
		messages: store.Messages,
		guard:    guard,
		notifier: notifier,
		logger:   logger,
	}
}

// Content is only required to be non-blank. Anything stricter belongs to
// request binding.
func normalizeContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperr.Validation("message content is required")
	}
	return content, nil
}

// List returns messages from chats the caller belongs to, newest first.
// Filtering by a chat the caller cannot read is reported as not found.
func (s *MessageService) List(ctx context.Context, id auth.Identity, filter repository.MessageFilter) (_ []models.Message, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.List")
	defer func() { finish(span, err) }()

	if !id.Valid() {
		return nil, apperr.ErrUnauthenticated
	}
	if filter.ChatID != 0 {
		span.SetAttributes(attribute.Int64("chat.id", filter.ChatID))
		if _, err := s.guard.RequireRead(ctx, id, filter.ChatID); err != nil {
			return nil, err
		}
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultMessageLimit
	case filter.Limit > MaxMessageLimit:
		filter.Limit = MaxMessageLimit
	}
	filter.MemberID = id.UserID

	msgs, err := s.messages.List(ctx, filter)
	if err != nil {
		return nil, apperr.Persistence("list messages", err)
	}
	return msgs, nil
}

// Get is scoped by membership of the message's chat, not by existence.
func (s *MessageService) Get(ctx context.Context, id auth.Identity, messageID int64) (_ *models.Message, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.Get")
	span.SetAttributes(attribute.Int64("message.id", messageID))
	defer func() { finish(span, err) }()

	if !id.Valid() {
		return nil, apperr.ErrUnauthenticated
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, apperr.Persistence("get message", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("message")
	}
	if _, err := s.guard.RequireRead(ctx, id, msg.ChatID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.NotFound("message")
		}
		return nil, err
	}
	return msg, nil
}

// Create requires a membership in chatID at the moment of the insert.
func (s *MessageService) Create(ctx context.Context, id auth.Identity, chatID int64, content string) (_ *models.Message, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.Create")
	span.SetAttributes(attribute.Int64("chat.id", chatID))
	defer func() { finish(span, err) }()

	if !id.Valid() {
		return nil, apperr.ErrUnauthenticated
	}
	content, err = normalizeContent(content)
	if err != nil {
		return nil, err
	}

	unlock := s.notifier.lock(chatID)
	defer unlock()

	if _, err := s.guard.RequireWrite(ctx, id, chatID); err != nil {
		return nil, err
	}
	msg, err := s.messages.Create(ctx, chatID, id.UserID, content)
	if err != nil {
		return nil, apperr.Persistence("create message", err)
	}

	s.notifier.publish(ctx, id, broadcast.MessageCreated{Message: *msg})
	return msg, nil
}

// Update changes the content only and is restricted to the sender.
func (s *MessageService) Update(ctx context.Context, id auth.Identity, messageID int64, content string) (_ *models.Message, err error) {
	ctx, span := tracer.Start(ctx, "MessageService.Update")
	span.SetAttributes(attribute.Int64("message.id", messageID))
	defer func() { finish(span, err) }()

	if !id.Valid() {
		return nil, apperr.ErrUnauthenticated
	}
	content, err = normalizeContent(content)
	if err != nil {
		return nil, err
	}
	msg, err := s.guard.RequireSender(ctx, id, messageID)
	if err != nil {
		return nil, err
	}

	unlock := s.notifier.lock(msg.ChatID)
	defer unlock()

	updated, err := s.messages.UpdateContent(ctx, messageID, content)
	if err != nil {
		return nil, apperr.Persistence("update message", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("message")
	}

	s.notifier.publish(ctx, id, broadcast.MessageUpdated{Message: *updated})
	return updated, nil
}

// Delete is restricted to the sender.
func (s *MessageService) Delete(ctx context.Context, id auth.Identity, messageID int64) (err error) {
	ctx, span := tracer.Start(ctx, "MessageService.Delete")
	span.SetAttributes(attribute.Int64("message.id", messageID))
	defer func() { finish(span, err) }()

	msg, err := s.guard.RequireSender(ctx, id, messageID)
	if err != nil {
		return err
	}

	unlock := s.notifier.lock(msg.ChatID)
	defer unlock()

	deleted, err := s.messages.Delete(ctx, messageID)
	if err != nil {
		return apperr.Persistence("delete message", err)
	}
	if !deleted {
		return apperr.NotFound("message")
	}

	s.notifier.publish(ctx, id, broadcast.MessageDeleted{Chat: msg.ChatID, MessageID: messageID})
	return nil
}
