package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/echochat/internal/models"
	"github.com/lalith-99/echochat/internal/repository"
)

type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func (s *MembershipStore) AddMember(ctx context.Context, chatID int64, userID uuid.UUID) (*models.Membership, bool, error) {
	// ON CONFLICT DO NOTHING keeps the call idempotent. RETURNING yields no
	// row on conflict, which is how we tell "created" from "already there".
	var m models.Membership
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_members (chat_id, user_id, joined_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id, chat_id) DO NOTHING
		RETURNING user_id, chat_id, joined_at`,
		chatID, userID).Scan(&m.UserID, &m.ChatID, &m.JoinedAt)
	if err == nil {
		return &m, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, classify("add member", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT user_id, chat_id, joined_at
		FROM chat_members
		WHERE chat_id = $1 AND user_id = $2`,
		chatID, userID).Scan(&m.UserID, &m.ChatID, &m.JoinedAt)
	if err != nil {
		return nil, false, fmt.Errorf("get existing member: %w", err)
	}
	return &m, false, nil
}

func (s *MembershipStore) RemoveMember(ctx context.Context, chatID int64, userID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := s.pool.QueryRow(ctx, `
		DELETE FROM chat_members
		WHERE chat_id = $1 AND user_id = $2
		RETURNING user_id, chat_id, joined_at`,
		chatID, userID).Scan(&m.UserID, &m.ChatID, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("remove member: %w", err)
	}
	return &m, nil
}

// List only returns rows of chats MemberID belongs to.
func (s *MembershipStore) List(ctx context.Context, f repository.MembershipFilter) ([]models.Membership, error) {
	var cond conditions
	cond.add("m.chat_id IN (SELECT chat_id FROM chat_members WHERE user_id = ?)", f.MemberID)
	if f.UserID != uuid.Nil {
		cond.add("m.user_id = ?", f.UserID)
	}
	if f.ChatID != 0 {
		cond.add("m.chat_id = ?", f.ChatID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT m.user_id, m.chat_id, m.joined_at
		FROM chat_members m
		`+cond.where()+`
		ORDER BY m.chat_id, m.joined_at`,
		cond.args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.Membership, 0)
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.UserID, &m.ChatID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}

func (s *MembershipStore) IsMember(ctx context.Context, chatID int64, userID uuid.UUID) (bool, error) {
	// EXISTS stops at the first match; this runs before every send and subscribe.
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_members
			WHERE chat_id = $1 AND user_id = $2
		)`, chatID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}
