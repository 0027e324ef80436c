package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echochat/internal/middleware"
	"github.com/lalith-99/echochat/internal/repository"
	"github.com/lalith-99/echochat/internal/service"
	"go.uber.org/zap"
)

// ChatHandler is a thin transport over service.ChatService: it parses the
// request, calls the service and maps the error kind to a status.
//
// Why hold a *service.ChatService and not the repositories directly?
//   - A chat mutation is more than a row write. It is authorize, commit,
//     then publish to live connections in commit order. That sequence lives
//     in the service so the HTTP layer and any future transport share it.
//   - The handler stays about HTTP only: binding, query parsing, status
//     codes. writeError turns the service's error kinds into 4xx/5xx.
//
// Why no tenant or user id in the request?
//   - Both come from the token via middleware.GetIdentity. A client that
//     could name its tenant in the body could read another tenant's chats.
type ChatHandler struct {
	chats  *service.ChatService
	logger *zap.Logger
}

func NewChatHandler(chats *service.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, logger: logger}
}

// chatRequest is the body of both POST /v1/chats and PUT /v1/chats/:id.
//
// Why not bind straight into models.Chat?
//   - The row carries id, tenant_id, creator_id and created_at. None of
//     those are the client's to choose, and binding into the model would
//     let a crafted body set them.
//   - One small struct also keeps create and rename validating the name
//     the same way.
//
// binding:"max=100" is only the cheap first pass. The service trims the
// name and counts characters, not bytes, so "   " is still rejected there.
type chatRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

// List handles GET /v1/chats?creator_id=&name=&created_from=&created_to=
func (h *ChatHandler) List(c *gin.Context) {
	var (
		filter repository.ChatFilter
		ok     bool
	)
	if filter.CreatorID, ok = queryUUID(c, "creator_id"); !ok {
		return
	}
	if filter.CreatedFrom, ok = queryTime(c, "created_from"); !ok {
		return
	}
	if filter.CreatedTo, ok = queryTime(c, "created_to"); !ok {
		return
	}
	filter.Name = c.Query("name")

	chats, err := h.chats.List(c.Request.Context(), middleware.GetIdentity(c), filter)
	if err != nil {
		writeError(c, h.logger, "failed to list chats", err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// Create handles POST /v1/chats. The caller becomes creator and first member.
func (h *ChatHandler) Create(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ch, err := h.chats.Create(c.Request.Context(), middleware.GetIdentity(c), req.Name)
	if err != nil {
		writeError(c, h.logger, "failed to create chat", err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// Get handles GET /v1/chats/:id
func (h *ChatHandler) Get(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ch, err := h.chats.Get(c.Request.Context(), middleware.GetIdentity(c), chatID)
	if err != nil {
		writeError(c, h.logger, "failed to get chat", err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// Rename handles PUT /v1/chats/:id
func (h *ChatHandler) Rename(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if _, err := h.chats.Rename(c.Request.Context(), middleware.GetIdentity(c), chatID, req.Name); err != nil {
		writeError(c, h.logger, "failed to rename chat", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /v1/chats/:id
func (h *ChatHandler) Delete(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.chats.Delete(c.Request.Context(), middleware.GetIdentity(c), chatID); err != nil {
		writeError(c, h.logger, "failed to delete chat", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Online handles GET /v1/chats/:id/online
func (h *ChatHandler) Online(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}

	users, err := h.chats.Online(c.Request.Context(), middleware.GetIdentity(c), chatID)
	if err != nil {
		writeError(c, h.logger, "failed to list online users", err)
		return
	}
	c.JSON(http.StatusOK, users)
}
