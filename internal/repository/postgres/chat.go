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

type ChatStore struct {
	pool *pgxpool.Pool
}

func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

const chatColumns = `c.id, c.tenant_id, c.creator_id, c.name, c.created_at`

func scanChat(row pgx.Row) (*models.Chat, error) {
	var ch models.Chat
	if err := row.Scan(&ch.ID, &ch.TenantID, &ch.CreatorID, &ch.Name, &ch.CreatedAt); err != nil {
		return nil, err
	}
	return &ch, nil
}

// Create inserts the chat and the creator's membership in one transaction.
func (s *ChatStore) Create(ctx context.Context, tenantID, creatorID uuid.UUID, name string) (*models.Chat, error) {
	var ch *models.Chat
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		ch, err = scanChat(tx.QueryRow(ctx, `
			INSERT INTO chats AS c (tenant_id, creator_id, name, created_at)
			VALUES ($1, $2, $3, now())
			RETURNING `+chatColumns,
			tenantID, creatorID, name))
		if err != nil {
			return classify("insert chat", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO chat_members (chat_id, user_id, joined_at)
			VALUES ($1, $2, $3)`,
			ch.ID, creatorID, ch.CreatedAt)
		if err != nil {
			return classify("insert creator membership", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *ChatStore) GetByID(ctx context.Context, tenantID uuid.UUID, chatID int64) (*models.Chat, error) {
	ch, err := scanChat(s.pool.QueryRow(ctx, `
		SELECT `+chatColumns+`
		FROM chats c
		WHERE c.id = $1 AND c.tenant_id = $2`,
		chatID, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return ch, nil
}

// List joins chat_members so only chats the member belongs to come back.
func (s *ChatStore) List(ctx context.Context, tenantID uuid.UUID, f repository.ChatFilter) ([]models.Chat, error) {
	var cond conditions
	cond.add("c.tenant_id = ?", tenantID)
	cond.add("m.user_id = ?", f.MemberID)
	if f.CreatorID != uuid.Nil {
		cond.add("c.creator_id = ?", f.CreatorID)
	}
	if f.Name != "" {
		cond.add("c.name ILIKE ?", containsPattern(f.Name))
	}
	if f.CreatedFrom != nil {
		cond.add("c.created_at >= ?", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		cond.add("c.created_at <= ?", *f.CreatedTo)
	}

	query := `
		SELECT ` + chatColumns + `
		FROM chats c
		JOIN chat_members m ON m.chat_id = c.id
		` + cond.where() + `
		ORDER BY c.created_at DESC, c.id DESC`

	rows, err := s.pool.Query(ctx, query, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		ch, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	return chats, nil
}

func (s *ChatStore) Rename(ctx context.Context, tenantID uuid.UUID, chatID int64, name string) (*models.Chat, error) {
	ch, err := scanChat(s.pool.QueryRow(ctx, `
		UPDATE chats AS c SET name = $3
		WHERE c.id = $1 AND c.tenant_id = $2
		RETURNING `+chatColumns,
		chatID, tenantID, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("rename chat", err)
	}
	return ch, nil
}

// Delete removes messages, memberships and the chat in one transaction. The
// foreign keys cascade as well; the explicit deletes keep the behaviour
// independent of how the schema was created.
func (s *ChatStore) Delete(ctx context.Context, tenantID uuid.UUID, chatID int64) (bool, error) {
	deleted := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `
			SELECT id FROM chats WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
			chatID, tenantID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("lock chat: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE chat_id = $1`, chatID); err != nil {
			return fmt.Errorf("delete chat messages: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM chat_members WHERE chat_id = $1`, chatID); err != nil {
			return fmt.Errorf("delete chat members: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID)
		if err != nil {
			return fmt.Errorf("delete chat: %w", err)
		}
		deleted = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}
