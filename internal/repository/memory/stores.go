package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/models"
	"github.com/lalith-99/echochat/internal/repository"
	"github.com/samber/lo"
)

const defaultListLimit = 50

type ChatStore struct{ db *DB }

func (s *ChatStore) Create(_ context.Context, tenantID, creatorID uuid.UUID, name string) (*models.Chat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := s.db.takeFailure(OpChatCreate, OpMembershipAdd); err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	s.db.nextChatID++
	now := s.db.now()
	ch := models.Chat{
		ID:        s.db.nextChatID,
		TenantID:  tenantID,
		CreatorID: creatorID,
		Name:      name,
		CreatedAt: now,
	}
	s.db.chats[ch.ID] = ch
	s.db.memberships[membershipKey{chatID: ch.ID, userID: creatorID}] = models.Membership{
		UserID: creatorID, ChatID: ch.ID, JoinedAt: now,
	}
	return &ch, nil
}

func (s *ChatStore) GetByID(_ context.Context, tenantID uuid.UUID, chatID int64) (*models.Chat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	ch, ok := s.db.chats[chatID]
	if !ok || ch.TenantID != tenantID {
		return nil, nil
	}
	return &ch, nil
}

func (s *ChatStore) List(_ context.Context, tenantID uuid.UUID, f repository.ChatFilter) ([]models.Chat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	mine := s.db.memberChats(f.MemberID)
	chats := lo.Filter(lo.Values(s.db.chats), func(ch models.Chat, _ int) bool {
		if ch.TenantID != tenantID {
			return false
		}
		if _, ok := mine[ch.ID]; !ok {
			return false
		}
		if f.CreatorID != uuid.Nil && ch.CreatorID != f.CreatorID {
			return false
		}
		if f.Name != "" && !containsFold(ch.Name, f.Name) {
			return false
		}
		return within(ch.CreatedAt, f.CreatedFrom, f.CreatedTo)
	})
	sortChatsNewestFirst(chats)
	return chats, nil
}

func (s *ChatStore) Rename(_ context.Context, tenantID uuid.UUID, chatID int64, name string) (*models.Chat, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := s.db.takeFailure(OpChatRename); err != nil {
		return nil, fmt.Errorf("rename chat: %w", err)
	}
	ch, ok := s.db.chats[chatID]
	if !ok || ch.TenantID != tenantID {
		return nil, nil
	}
	ch.Name = name
	s.db.chats[chatID] = ch
	return &ch, nil
}

func (s *ChatStore) Delete(_ context.Context, tenantID uuid.UUID, chatID int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := s.db.takeFailure(OpChatDelete); err != nil {
		return false, fmt.Errorf("delete chat: %w", err)
	}
	ch, ok := s.db.chats[chatID]
	if !ok || ch.TenantID != tenantID {
		return false, nil
	}
	delete(s.db.chats, chatID)
	for key := range s.db.memberships {
		if key.chatID == chatID {
			delete(s.db.memberships, key)
		}
	}
	for id, msg := range s.db.messages {
		if msg.ChatID == chatID {
			delete(s.db.messages, id)
		}
	}
	return true, nil
}

type MembershipStore struct{ db *DB }

func (s *MembershipStore) AddMember(_ context.Context, chatID int64, userID uuid.UUID) (*models.Membership, bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := s.db.takeFailure(OpMembershipAdd); err != nil {
		return nil, false, fmt.Errorf("add member: %w", err)
	}
	if _, ok := s.db.chats[chatID]; !ok {
		return nil, false, fmt.Errorf("add member: chat %d: %w", chatID, apperr.ErrNotFound)
	}
	key := membershipKey{chatID: chatID, userID: userID}
	if m, ok := s.db.memberships[key]; ok {
		return &m, false, nil
	}
	m := models.Membership{UserID: userID, ChatID: chatID, JoinedAt: s.db.now()}
	s.db.memberships[key] = m
	return &m, true, nil
}

func (s *MembershipStore) RemoveMember(_ context.Context, chatID int64, userID uuid.UUID) (*models.Membership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := s.db.takeFailure(OpMembershipRemove); err != nil {
		return nil, fmt.Errorf("remove member: %w", err)
	}
	key := membershipKey{chatID: chatID, userID: userID}
	m, ok := s.db.memberships[key]
	if !ok {
		return nil, nil
	}
	delete(s.db.memberships, key)
	return &m, nil
}

func (s *MembershipStore) List(_ context.Context, f repository.MembershipFilter) ([]models.Membership, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	mine := s.db.memberChats(f.MemberID)
	out := lo.Filter(lo.Values(s.db.memberships), func(m models.Membership, _ int) bool {
		if _, ok := mine[m.ChatID]; !ok {
			return false
		}
		if f.UserID != uuid.Nil && m.UserID != f.UserID {
			return false
		}
		return f.ChatID == 0 || m.ChatID == f.ChatID
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChatID != out[j].ChatID {
			return out[i].ChatID < out[j].ChatID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out, nil
}

func (s *MembershipStore) IsMember(_ context.Context, chatID int64, userID uuid.UUID) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.isMember(chatID, userID), nil
}

type MessageStore struct{ db *DB }

func (s *MessageStore) Create(_ context.Context, chatID int64, senderID uuid.UUID, content string) (*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := s.db.takeFailure(OpMessageCreate); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	if _, ok := s.db.chats[chatID]; !ok {
		return nil, fmt.Errorf("insert message: chat %d: %w", chatID, apperr.ErrNotFound)
	}
	s.db.nextMessageID++
	msg := models.Message{
		ID:       s.db.nextMessageID,
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
		SentAt:   s.db.now(),
	}
	s.db.messages[msg.ID] = msg
	return &msg, nil
}

func (s *MessageStore) GetByID(_ context.Context, messageID int64) (*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	msg, ok := s.db.messages[messageID]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

func (s *MessageStore) List(_ context.Context, f repository.MessageFilter) ([]models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	mine := s.db.memberChats(f.MemberID)
	out := lo.Filter(lo.Values(s.db.messages), func(m models.Message, _ int) bool {
		if _, ok := mine[m.ChatID]; !ok {
			return false
		}
		if f.ChatID != 0 && m.ChatID != f.ChatID {
			return false
		}
		if f.SenderID != uuid.Nil && m.SenderID != f.SenderID {
			return false
		}
		if f.Before > 0 && m.ID >= f.Before {
			return false
		}
		return within(m.SentAt, f.SentFrom, f.SentTo)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MessageStore) UpdateContent(_ context.Context, messageID int64, content string) (*models.Message, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := s.db.takeFailure(OpMessageUpdate); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	msg, ok := s.db.messages[messageID]
	if !ok {
		return nil, nil
	}
	msg.Content = content
	s.db.messages[messageID] = msg
	return &msg, nil
}

func (s *MessageStore) Delete(_ context.Context, messageID int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if err := s.db.takeFailure(OpMessageDelete); err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	if _, ok := s.db.messages[messageID]; !ok {
		return false, nil
	}
	delete(s.db.messages, messageID)
	return true, nil
}

type UserStore struct{ db *DB }

func (s *UserStore) Create(_ context.Context, tenantID uuid.UUID, email, displayName, passwordHash string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, email) {
			return nil, fmt.Errorf("insert user: email %q: %w", email, apperr.ErrConflict)
		}
	}
	u := models.User{
		ID:           uuid.New(),
		TenantID:     tenantID,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		CreatedAt:    s.db.now(),
	}
	s.db.users[u.ID] = u
	return &u, nil
}

func (s *UserStore) GetByID(_ context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	u, ok := s.db.users[userID]
	if !ok || u.TenantID != tenantID {
		return nil, nil
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, nil
}

type TenantStore struct{ db *DB }

func (s *TenantStore) Create(_ context.Context, name string) (*models.Tenant, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	t := models.Tenant{ID: uuid.New(), Name: name, CreatedAt: s.db.now()}
	s.db.tenants[t.ID] = t
	return &t, nil
}

func (s *TenantStore) GetByID(_ context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	t, ok := s.db.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}
