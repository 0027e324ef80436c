package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/stretchr/testify/require"
)

func TestConditions(t *testing.T) {
	req := require.New(t)
	var c conditions

	req.Empty(c.where())

	c.add("c.tenant_id = ?", "t1")
	c.add("c.created_at BETWEEN ? AND ?", 1, 2)
	limit := c.arg(50)

	req.Equal("WHERE c.tenant_id = $1 AND c.created_at BETWEEN $2 AND $3", c.where())
	req.Equal("$4", limit)
	req.Equal([]any{"t1", 1, 2, 50}, c.args)
}

func TestClassify(t *testing.T) {
	req := require.New(t)

	err := classify("insert user", &pgconn.PgError{Code: uniqueViolation, ConstraintName: "users_email_key"})
	req.ErrorIs(err, apperr.ErrConflict)

	err = classify("add member", &pgconn.PgError{Code: foreignKeyViolation})
	req.ErrorIs(err, apperr.ErrNotFound)

	err = classify("list chats", &pgconn.PgError{Code: "57014"})
	req.NotErrorIs(err, apperr.ErrConflict)
	req.Contains(err.Error(), "list chats")
}

func TestContainsPattern(t *testing.T) {
	require.Equal(t, `%team%`, containsPattern("team"))
	require.Equal(t, `%50\%\_off%`, containsPattern("50%_off"))
}
