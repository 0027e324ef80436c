package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/echochat/internal/middleware"
	"github.com/lalith-99/echochat/internal/repository"
	"github.com/lalith-99/echochat/internal/service"
	"go.uber.org/zap"
)

// MessageHandler serves /v1/messages.
//
// Why are messages a top-level resource and not /v1/chats/:id/messages?
//   - A message is addressed by its own id for get, edit and delete, and
//     the chat it belongs to is looked up from the row. Nesting would make
//     the client repeat a chat id the server has to verify anyway.
//   - Listing still filters by chat through ?chat_id=, alongside sender and
//     time range filters.
type MessageHandler struct {
	messages *service.MessageService
	logger   *zap.Logger
}

func NewMessageHandler(messages *service.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

// createMessageRequest is the body of POST /v1/messages.
//
// Why no sender_id field?
//   - The sender is always the caller. Taking it from the body would let any
//     member post as someone else.
//
// binding:"gt=0" rejects a missing chat_id before the service runs, so a
// zero id never reaches the membership check.
type createMessageRequest struct {
	ChatID  int64  `json:"chat_id" binding:"required,gt=0"`
	Content string `json:"content" binding:"required"`
}

type updateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// List handles GET /v1/messages?chat_id=&sender_id=&sent_from=&sent_to=&before=&limit=
//
// Cursor pagination: before is a message id, 0 starts from the newest. The
// service defaults and caps limit.
func (h *MessageHandler) List(c *gin.Context) {
	var (
		filter repository.MessageFilter
		ok     bool
	)
	if filter.ChatID, ok = queryInt64(c, "chat_id"); !ok {
		return
	}
	if filter.SenderID, ok = queryUUID(c, "sender_id"); !ok {
		return
	}
	if filter.SentFrom, ok = queryTime(c, "sent_from"); !ok {
		return
	}
	if filter.SentTo, ok = queryTime(c, "sent_to"); !ok {
		return
	}
	if filter.Before, ok = queryInt64(c, "before"); !ok {
		return
	}
	if l := c.Query("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 {
			badRequest(c, "invalid 'limit' parameter")
			return
		}
		filter.Limit = limit
	}

	msgs, err := h.messages.List(c.Request.Context(), middleware.GetIdentity(c), filter)
	if err != nil {
		writeError(c, h.logger, "failed to list messages", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Create handles POST /v1/messages
func (h *MessageHandler) Create(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.messages.Create(c.Request.Context(), middleware.GetIdentity(c), req.ChatID, req.Content)
	if err != nil {
		writeError(c, h.logger, "failed to create message", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Get handles GET /v1/messages/:id
func (h *MessageHandler) Get(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	msg, err := h.messages.Get(c.Request.Context(), middleware.GetIdentity(c), messageID)
	if err != nil {
		writeError(c, h.logger, "failed to get message", err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Update handles PUT /v1/messages/:id. Only the content can change.
func (h *MessageHandler) Update(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if _, err := h.messages.Update(c.Request.Context(), middleware.GetIdentity(c), messageID, req.Content); err != nil {
		writeError(c, h.logger, "failed to update message", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /v1/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.messages.Delete(c.Request.Context(), middleware.GetIdentity(c), messageID); err != nil {
		writeError(c, h.logger, "failed to delete message", err)
		return
	}
	c.Status(http.StatusNoContent)
}
