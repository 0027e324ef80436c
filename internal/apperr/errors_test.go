package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPersistence_WrapsUnknownErrors(t *testing.T) {
	req := require.New(t)
	cause := errors.New("connection reset")

	err := Persistence("create chat", cause)

	req.ErrorIs(err, ErrPersistence)
	req.ErrorIs(err, cause)
	req.Contains(err.Error(), "create chat")
}

func TestPersistence_KeepsKnownKinds(t *testing.T) {
	req := require.New(t)
	notFound := NotFound("chat")

	err := Persistence("rename chat", notFound)

	req.ErrorIs(err, ErrNotFound)
	req.NotErrorIs(err, ErrPersistence)
	req.Nil(Persistence("noop", nil))
}

func TestValidation(t *testing.T) {
	err := Validation("name must be at most %d characters", 100)

	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "100")
}
