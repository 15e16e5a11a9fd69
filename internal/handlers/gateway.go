package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/gateway"
	"chat-sync/internal/models"
)

// SyncGateway is the set of chat operations served over HTTP.
type SyncGateway interface {
	UserExists(ctx context.Context, email string) (bool, error)
	InsertUser(ctx context.Context, user models.User) error
	GetAllUsers(ctx context.Context) ([]models.DirectoryEntry, error)
	SearchUsers(ctx context.Context, query, selfEmail string) ([]models.DirectoryEntry, error)
	CreateNewConversation(ctx context.Context, me models.Identity, otherEmail, otherName string, first models.Message) (string, error)
	SendMessage(ctx context.Context, me models.Identity, conversationID, otherEmail, otherName string, msg models.Message) error
	GetAllConversations(ctx context.Context, email string) ([]models.ConversationSummary, error)
	GetAllMessagesForConversation(ctx context.Context, conversationID string) ([]models.Message, error)
	DeleteConversation(ctx context.Context, me models.Identity, conversationID string) error
	ConversationExists(ctx context.Context, me models.Identity, targetEmail string) (string, error)
}

// statusFor maps gateway errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrNoCurrentUser):
		return http.StatusUnauthorized
	case errors.Is(err, gateway.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, gateway.ErrConversationExists), errors.Is(err, gateway.ErrConversationIDTaken):
		return http.StatusConflict
	case errors.Is(err, gateway.ErrFetchFailed):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// abortWithGatewayError writes the status for err. Server errors get a
// generic message; client errors echo err.
func abortWithGatewayError(c *gin.Context, err error, serverMessage string) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = serverMessage
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": message})
}
