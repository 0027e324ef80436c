package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/echochat/internal/middleware"
	"github.com/lalith-99/echochat/internal/repository"
	"github.com/lalith-99/echochat/internal/service"
	"go.uber.org/zap"
)

type MembershipHandler struct {
	memberships *service.MembershipService
	logger      *zap.Logger
}

func NewMembershipHandler(memberships *service.MembershipService, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{memberships: memberships, logger: logger}
}

type addMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// List handles GET /v1/memberships?user_id=&chat_id=
func (h *MembershipHandler) List(c *gin.Context) {
	var (
		filter repository.MembershipFilter
		ok     bool
	)
	if filter.UserID, ok = queryUUID(c, "user_id"); !ok {
		return
	}
	if filter.ChatID, ok = queryInt64(c, "chat_id"); !ok {
		return
	}

	ms, err := h.memberships.List(c.Request.Context(), middleware.GetIdentity(c), filter)
	if err != nil {
		writeError(c, h.logger, "failed to list memberships", err)
		return
	}
	c.JSON(http.StatusOK, ms)
}

// Add handles POST /v1/chats/:id/members. Adding an existing member is a
// no-op that still answers 204.
func (h *MembershipHandler) Add(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if _, err := h.memberships.Join(c.Request.Context(), middleware.GetIdentity(c), chatID, req.UserID); err != nil {
		writeError(c, h.logger, "failed to add member", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Remove handles DELETE /v1/chats/:id/members/:userID
func (h *MembershipHandler) Remove(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, err := uuid.Parse(c.Param("userID"))
	if err != nil {
		badRequest(c, "invalid userID")
		return
	}

	if err := h.memberships.Leave(c.Request.Context(), middleware.GetIdentity(c), chatID, userID); err != nil {
		writeError(c, h.logger, "failed to remove member", err)
		return
	}
	c.Status(http.StatusNoContent)
}
