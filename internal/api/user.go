package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echochat/internal/apperr"
	"github.com/lalith-99/echochat/internal/middleware"
	"github.com/lalith-99/echochat/internal/repository"
	"go.uber.org/zap"
)

type UserHandler struct {
	users  repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(store repository.Store, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: store.Users, logger: logger}
}

// GetMe handles GET /v1/users/me.
func (h *UserHandler) GetMe(c *gin.Context) {
	id := middleware.GetIdentity(c)

	user, err := h.users.GetByID(c.Request.Context(), id.TenantID, id.UserID)
	if err != nil {
		writeError(c, h.logger, "failed to get user", apperr.Persistence("get user", err))
		return
	}
	// A valid token for a user that no longer exists.
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}
