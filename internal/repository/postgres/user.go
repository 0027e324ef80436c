package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/echochat/internal/models"
)

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `id, tenant_id, email, display_name, password_hash, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row. Postgres generates the UUID and timestamp.
// A duplicate email surfaces as apperr.ErrConflict.
func (s *UserStore) Create(ctx context.Context, tenantID uuid.UUID, email, displayName, passwordHash string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (tenant_id, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING `+userColumns,
		tenantID, email, displayName, passwordHash,
	))
	if err != nil {
		return nil, classify("insert user", err)
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.User, error) {
	return s.getOne(ctx, "get user",
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND tenant_id = $2`,
		userID, tenantID)
}

// GetByEmail is not tenant scoped: login runs before any tenant is known.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getOne(ctx, "get user by email",
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		email)
}

func (s *UserStore) getOne(ctx context.Context, op, query string, args ...any) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
