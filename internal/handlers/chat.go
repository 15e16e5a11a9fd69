package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/codec"
	"chat-sync/internal/gateway"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/telemetry"
)

// ChatHandler serves conversations and their messages.
type ChatHandler struct {
	gateway SyncGateway
	audit   *telemetry.AuditEmitter
}

func NewChatHandler(gw SyncGateway, audit *telemetry.AuditEmitter) *ChatHandler {
	return &ChatHandler{gateway: gw, audit: audit}
}

type messageInput struct {
	ID      string `json:"id"`
	Type    string `json:"type" binding:"required"`
	Content string `json:"content"`
}

func (in messageInput) toMessage() (models.Message, error) {
	content, err := codec.DecodeContent(in.Type, in.Content)
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{ID: in.ID, Content: content}, nil
}

// ListConversations returns the caller's conversation list.
func (h *ChatHandler) ListConversations(c *gin.Context) {
	me := middleware.CurrentUser(c)
	conversations, err := h.gateway.GetAllConversations(c.Request.Context(), me.Email)
	if errors.Is(err, gateway.ErrFetchFailed) {
		c.JSON(http.StatusOK, gin.H{"conversations": []models.ConversationSummary{}})
		return
	}
	if err != nil {
		abortWithGatewayError(c, err, "failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

// StartConversation creates a conversation with its first message.
func (h *ChatHandler) StartConversation(c *gin.Context) {
	var req struct {
		RecipientEmail string       `json:"recipient_email" binding:"required,email"`
		RecipientName  string       `json:"recipient_name" binding:"required"`
		Message        messageInput `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := req.Message.toMessage()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	me := middleware.CurrentUser(c)
	id, err := h.gateway.CreateNewConversation(c.Request.Context(), me, req.RecipientEmail, req.RecipientName, msg)
	if errors.Is(err, gateway.ErrConversationExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "conversation already exists", "conversation_id": id})
		return
	}
	if err != nil {
		abortWithGatewayError(c, err, "could not create conversation")
		return
	}

	h.audit.Emit(c.Request.Context(), "INFO", "conversation created: "+id, requestIDFromContext(c), userEmailFromContext(c))
	c.JSON(http.StatusCreated, gin.H{"conversation_id": id})
}

// ConversationExists looks up the conversation between the caller and the
// email query parameter from the other side's list.
func (h *ChatHandler) ConversationExists(c *gin.Context) {
	target := c.Query("email")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}
	id, err := h.gateway.ConversationExists(c.Request.Context(), middleware.CurrentUser(c), target)
	if err != nil {
		abortWithGatewayError(c, err, "failed to look up conversation")
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id})
}

// DeleteConversation removes a conversation from the caller's list.
func (h *ChatHandler) DeleteConversation(c *gin.Context) {
	id := c.Param("conversation_id")
	if err := h.gateway.DeleteConversation(c.Request.Context(), middleware.CurrentUser(c), id); err != nil {
		abortWithGatewayError(c, err, "could not delete conversation")
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", "conversation deleted: "+id, requestIDFromContext(c), userEmailFromContext(c))
	c.Status(http.StatusNoContent)
}

// GetMessages returns the message log of a conversation of the caller.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	id := c.Param("conversation_id")
	if _, ok := h.participant(c, id); !ok {
		return
	}

	msgs, err := h.gateway.GetAllMessagesForConversation(c.Request.Context(), id)
	if err != nil {
		abortWithGatewayError(c, err, "failed to load messages")
		return
	}
	resp := make([]models.MessageRecord, 0, len(msgs))
	for _, m := range msgs {
		rec, err := codec.EncodeMessage(m)
		if err != nil {
			continue
		}
		resp = append(resp, rec)
	}
	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// PostMessage sends a message in an existing conversation. The recipient
// defaults to the counterpart of the caller's summary.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	id := c.Param("conversation_id")
	summary, ok := h.participant(c, id)
	if !ok {
		return
	}

	var req struct {
		RecipientEmail string       `json:"recipient_email"`
		RecipientName  string       `json:"recipient_name"`
		Message        messageInput `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := req.Message.toMessage()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RecipientEmail == "" {
		req.RecipientEmail = summary.OtherUserEmail
	}
	if req.RecipientName == "" {
		req.RecipientName = summary.Name
	}

	me := middleware.CurrentUser(c)
	if err := h.gateway.SendMessage(c.Request.Context(), me, id, req.RecipientEmail, req.RecipientName, msg); err != nil {
		abortWithGatewayError(c, err, "failed to store message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation_id": id})
}

// participant finds the caller's summary of conversation id, writing 403
// when the caller is not part of it.
func (h *ChatHandler) participant(c *gin.Context, id string) (models.ConversationSummary, bool) {
	list, err := h.gateway.GetAllConversations(c.Request.Context(), middleware.CurrentUser(c).Email)
	if err != nil && !errors.Is(err, gateway.ErrFetchFailed) {
		abortWithGatewayError(c, err, "failed to verify membership")
		return models.ConversationSummary{}, false
	}
	for _, s := range list {
		if s.ID == id {
			return s, true
		}
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "not a conversation member"})
	return models.ConversationSummary{}, false
}
