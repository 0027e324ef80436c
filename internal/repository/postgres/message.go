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

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `id, chat_id, sender_id, content, sent_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	if err := row.Scan(&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.SentAt); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Create(ctx context.Context, chatID int64, senderID uuid.UUID, content string) (*models.Message, error) {
	// bigserial id, generated by Postgres and handed back by RETURNING.
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		INSERT INTO messages (chat_id, sender_id, content, sent_at)
		VALUES ($1, $2, $3, now())
		RETURNING `+messageColumns,
		chatID, senderID, content))
	if err != nil {
		return nil, classify("insert message", err)
	}
	return msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1`, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

// List pages by id: Before=0 is the newest page, Before=42 continues with
// messages older than 42. Both orders use the (chat_id, id DESC) index.
func (s *MessageStore) List(ctx context.Context, f repository.MessageFilter) ([]models.Message, error) {
	var cond conditions
	cond.add("chat_id IN (SELECT chat_id FROM chat_members WHERE user_id = ?)", f.MemberID)
	if f.ChatID != 0 {
		cond.add("chat_id = ?", f.ChatID)
	}
	if f.SenderID != uuid.Nil {
		cond.add("sender_id = ?", f.SenderID)
	}
	if f.SentFrom != nil {
		cond.add("sent_at >= ?", *f.SentFrom)
	}
	if f.SentTo != nil {
		cond.add("sent_at <= ?", *f.SentTo)
	}
	if f.Before > 0 {
		cond.add("id < ?", f.Before)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT ` + messageColumns + `
		FROM messages
		` + cond.where() + `
		ORDER BY id DESC
		LIMIT ` + cond.arg(limit)

	rows, err := s.pool.Query(ctx, query, cond.args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (s *MessageStore) UpdateContent(ctx context.Context, messageID int64, content string) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `
		UPDATE messages SET content = $2
		WHERE id = $1
		RETURNING `+messageColumns,
		messageID, content))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("update message", err)
	}
	return msg, nil
}

func (s *MessageStore) Delete(ctx context.Context, messageID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
