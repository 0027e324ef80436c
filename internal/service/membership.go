package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/auth"
	"github.com/lalith-99/echochat/internal/authz"
	"github.com/lalith-99/echochat/internal/broadcast"
	"github.com/lalith-99/echochat/internal/models"
	"github.com/lalith-99/echochat/internal/repository"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MembershipService manages who is in a chat.
//
// Adding members is a grant by the chat's creator. Nobody else can add
// anyone, themselves included. Leaving is open to the member and to the
// creator (kick); the creator cannot leave and deletes the chat instead.
type MembershipService struct {
	chats    repository.ChatRepository
	members  repository.MembershipRepository
	users    repository.UserRepository
	guard    *authz.Guard
	notifier *Notifier
	logger   *zap.Logger
}

func NewMembershipService(store repository.Store, guard *authz.Guard, notifier *Notifier, logger *zap.Logger) *MembershipService {
	return &MembershipService{
		chats:    store.Chats,
		members:  store.Memberships,
		users:    store.Users,
		guard:    guard,
		notifier: notifier,
		logger:   logger,
	}
}

// Join adds userID to chatID. It is idempotent; UserJoined is published
// only when a row was created. Subscribing the new member's connections is
// left to the client, which learns of the chat through its inbox.
func (s *MembershipService) Join(ctx context.Context, id auth.Identity, chatID int64, userID uuid.UUID) (_ *models.Membership, err error) {
	ctx, span := tracer.Start(ctx, "MembershipService.Join")
	span.SetAttributes(attribute.Int64("chat.id", chatID), attribute.String("user.id", userID.String()))
	defer func() { finish(span, err) }()

	if !id.Valid() {
		return nil, apperr.ErrUnauthenticated
	}
	if userID == uuid.Nil {
		return nil, apperr.Validation("user_id is required")
	}

	unlock := s.notifier.lock(chatID)
	defer unlock()

	if _, err := s.guard.RequireOwner(ctx, id, chatID); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id.TenantID, userID)
	if err != nil {
		return nil, apperr.Persistence("load user", err)
	}
	if user == nil {
		return nil, apperr.NotFound("user")
	}

	m, created, err := s.members.AddMember(ctx, chatID, userID)
	if err != nil {
		return nil, apperr.Persistence("add member", err)
	}
	if created {
		s.notifier.publish(ctx, id, broadcast.UserJoined{Membership: *m}, userID)
		s.logger.Info("member added", zap.Int64("chat_id", chatID), zap.String("user_id", userID.String()))
	}
	return m, nil
}

// Leave removes userID from chatID. Removing a membership that does not
// exist is ErrNotFound. The user's live connections are dropped from the
// chat's group before UserLeft is published, so nothing sent to the chat
// afterwards reaches them; they still get UserLeft through their inbox.
func (s *MembershipService) Leave(ctx context.Context, id auth.Identity, chatID int64, userID uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "MembershipService.Leave")
	span.SetAttributes(attribute.Int64("chat.id", chatID), attribute.String("user.id", userID.String()))
	defer func() { finish(span, err) }()

	if !id.Valid() {
		return apperr.ErrUnauthenticated
	}

	unlock := s.notifier.lock(chatID)
	defer unlock()

	ch, err := s.chats.GetByID(ctx, id.TenantID, chatID)
	if err != nil {
		return apperr.Persistence("load chat", err)
	}
	if ch == nil {
		return apperr.NotFound("chat")
	}
	if id.UserID != userID && id.UserID != ch.CreatorID {
		return fmt.Errorf("%w: only the member or the chat creator may remove a member", apperr.ErrForbidden)
	}
	if userID == ch.CreatorID {
		return fmt.Errorf("%w: the creator cannot leave chat %d, delete it instead", apperr.ErrForbidden, chatID)
	}

	m, err := s.members.RemoveMember(ctx, chatID, userID)
	if err != nil {
		return apperr.Persistence("remove member", err)
	}
	if m == nil {
		return apperr.NotFound("membership")
	}

	dropped := s.notifier.revoke(chatID, userID)
	s.notifier.publish(ctx, id, broadcast.UserLeft{Membership: *m}, userID)
	s.logger.Info("member removed",
		zap.Int64("chat_id", chatID),
		zap.String("user_id", userID.String()),
		zap.Bool("kicked", id.UserID != userID),
		zap.Int("connections_dropped", dropped),
	)
	return nil
}

// List returns memberships of chats the caller belongs to.
func (s *MembershipService) List(ctx context.Context, id auth.Identity, filter repository.MembershipFilter) (_ []models.Membership, err error) {
	ctx, span := tracer.Start(ctx, "MembershipService.List")
	defer func() { finish(span, err) }()

	if !id.Valid() {
		return nil, apperr.ErrUnauthenticated
	}
	filter.MemberID = id.UserID
	ms, err := s.members.List(ctx, filter)
	if err != nil {
		return nil, apperr.Persistence("list memberships", err)
	}
	return ms, nil
}
