package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/gateway"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

var alice = models.Identity{Email: "alice@example.com", Name: "Alice Smith"}

func setupChatRouter(handler *ChatHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(withUser(alice.Email, alice.Name))
	r.GET("/conversations", handler.ListConversations)
	r.POST("/conversations", handler.StartConversation)
	r.GET("/conversations/exists", handler.ConversationExists)
	r.DELETE("/conversations/:conversation_id", handler.DeleteConversation)
	r.GET("/conversations/:conversation_id/messages", handler.GetMessages)
	r.POST("/conversations/:conversation_id/messages", handler.PostMessage)
	return r
}

func bobSummary() models.ConversationSummary {
	return models.ConversationSummary{
		ID:             "conversation-m1",
		OtherUserEmail: "bob-example-com",
		Name:           "Bob Jones",
		LatestMessage:  models.LatestMessage{Date: "Jan 2, 2026 at 3:04:05 PM UTC", MessageContent: "hi"},
	}
}

func TestListConversationsSuccess(t *testing.T) {
	gw := new(mocks.GatewayMock)
	gw.On("GetAllConversations", mock.Anything, alice.Email).Return([]models.ConversationSummary{bobSummary()}, nil).Once()
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodGet, "/conversations", nil)

	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody(t, w)["conversations"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "conversation-m1", list[0].(map[string]any)["id"])
	gw.AssertExpectations(t)
}

func TestListConversationsEmptyWhenAbsent(t *testing.T) {
	gw := new(mocks.GatewayMock)
	gw.On("GetAllConversations", mock.Anything, alice.Email).Return(nil, gateway.ErrFetchFailed).Once()
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodGet, "/conversations", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody(t, w)["conversations"])
}

func TestStartConversationCreated(t *testing.T) {
	gw := new(mocks.GatewayMock)
	first := models.Message{ID: "m1", Content: models.TextContent{Text: "hi"}}
	gw.On("CreateNewConversation", mock.Anything, alice, "bob@example.com", "Bob Jones", first).
		Return("conversation-m1", nil).Once()
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodPost, "/conversations", gin.H{
		"recipient_email": "bob@example.com",
		"recipient_name":  "Bob Jones",
		"message":         gin.H{"id": "m1", "type": "text", "content": "hi"},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "conversation-m1", decodeBody(t, w)["conversation_id"])
	gw.AssertExpectations(t)
}

func TestStartConversationConflictReturnsID(t *testing.T) {
	gw := new(mocks.GatewayMock)
	gw.On("CreateNewConversation", mock.Anything, alice, "bob@example.com", "Bob Jones", mock.Anything).
		Return("conversation-old", gateway.ErrConversationExists).Once()
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodPost, "/conversations", gin.H{
		"recipient_email": "bob@example.com",
		"recipient_name":  "Bob Jones",
		"message":         gin.H{"id": "m1", "type": "text", "content": "hi"},
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conversation-old", decodeBody(t, w)["conversation_id"])
}

func TestStartConversationRejectsBadContent(t *testing.T) {
	gw := new(mocks.GatewayMock)
	router := setupChatRouter(NewChatHandler(gw, nil))

	for _, msg := range []gin.H{
		{"type": "location", "content": "not-a-point"},
		{"type": "hologram", "content": "x"},
	} {
		w := doJSON(t, router, http.MethodPost, "/conversations", gin.H{
			"recipient_email": "bob@example.com",
			"recipient_name":  "Bob Jones",
			"message":         msg,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code, msg)
	}
	gw.AssertNotCalled(t, "CreateNewConversation", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConversationExistsLookup(t *testing.T) {
	gw := new(mocks.GatewayMock)
	gw.On("ConversationExists", mock.Anything, alice, "bob@example.com").Return("conversation-m1", nil).Once()
	gw.On("ConversationExists", mock.Anything, alice, "carol@example.com").Return("", gateway.ErrConversationNotFound).Once()
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodGet, "/conversations/exists?email=bob@example.com", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "conversation-m1", decodeBody(t, w)["conversation_id"])

	w = doJSON(t, router, http.MethodGet, "/conversations/exists?email=carol@example.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	gw.AssertExpectations(t)
}

func TestDeleteConversation(t *testing.T) {
	gw := new(mocks.GatewayMock)
	gw.On("DeleteConversation", mock.Anything, alice, "conversation-m1").Return(nil).Once()
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodDelete, "/conversations/conversation-m1", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	gw.AssertExpectations(t)
}

func TestGetMessagesRequiresMembership(t *testing.T) {
	gw := new(mocks.GatewayMock)
	gw.On("GetAllConversations", mock.Anything, alice.Email).Return([]models.ConversationSummary{bobSummary()}, nil).Once()
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodGet, "/conversations/conversation-other/messages", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	gw.AssertNotCalled(t, "GetAllMessagesForConversation", mock.Anything, mock.Anything)
}

func TestGetMessagesEncodesRecords(t *testing.T) {
	gw := new(mocks.GatewayMock)
	sent := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	gw.On("GetAllConversations", mock.Anything, alice.Email).Return([]models.ConversationSummary{bobSummary()}, nil).Once()
	gw.On("GetAllMessagesForConversation", mock.Anything, "conversation-m1").Return([]models.Message{
		{ID: "m1", Content: models.TextContent{Text: "hi"}, SentDate: sent, SenderEmail: "alice-example-com", RecipientName: "Bob Jones"},
		{ID: "m2", Content: models.LocationContent{Longitude: 13.4, Latitude: 52.52}, SentDate: sent, SenderEmail: "bob-example-com"},
	}, nil).Once()
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodGet, "/conversations/conversation-m1/messages", nil)

	require.Equal(t, http.StatusOK, w.Code)
	msgs := decodeBody(t, w)["messages"].([]any)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "text", first["type"])
	assert.Equal(t, "hi", first["content"])
	second := msgs[1].(map[string]any)
	assert.Equal(t, "location", second["type"])
	assert.Equal(t, "13.4,52.52", second["content"])
	gw.AssertExpectations(t)
}

func TestPostMessageDefaultsRecipient(t *testing.T) {
	gw := new(mocks.GatewayMock)
	msg := models.Message{ID: "m2", Content: models.TextContent{Text: "again"}}
	gw.On("GetAllConversations", mock.Anything, alice.Email).Return([]models.ConversationSummary{bobSummary()}, nil).Once()
	gw.On("SendMessage", mock.Anything, alice, "conversation-m1", "bob-example-com", "Bob Jones", msg).Return(nil).Once()
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodPost, "/conversations/conversation-m1/messages", gin.H{
		"message": gin.H{"id": "m2", "type": "text", "content": "again"},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	gw.AssertExpectations(t)
}

func TestPostMessageGatewayErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: gateway.ErrConversationNotFound, want: http.StatusNotFound},
		{err: fmt.Errorf("wrap: %w", gateway.ErrInvalidArgument), want: http.StatusBadRequest},
		{err: fmt.Errorf("store down"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		gw := new(mocks.GatewayMock)
		gw.On("GetAllConversations", mock.Anything, alice.Email).Return([]models.ConversationSummary{bobSummary()}, nil).Once()
		gw.On("SendMessage", mock.Anything, alice, "conversation-m1", mock.Anything, mock.Anything, mock.Anything).Return(tc.err).Once()
		router := setupChatRouter(NewChatHandler(gw, nil))

		w := doJSON(t, router, http.MethodPost, "/conversations/conversation-m1/messages", gin.H{
			"message": gin.H{"id": "m2", "type": "text", "content": "again"},
		})

		assert.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}

// downStore fails every read.
type downStore struct {
	store.Store
}

func (downStore) Get(ctx context.Context, path string) (store.Snapshot, error) {
	return store.Snapshot{}, errors.New("dial tcp: connection refused")
}

func TestStoreOutageIsServerError(t *testing.T) {
	gw := gateway.New(downStore{Store: store.NewMemory()})
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodGet, "/conversations", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = doJSON(t, router, http.MethodGet, "/conversations/conversation-m1/messages", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = doJSON(t, router, http.MethodPost, "/conversations", gin.H{
		"recipient_email": "bob@example.com",
		"recipient_name":  "Bob Jones",
		"message":         gin.H{"id": "m1", "type": "text", "content": "hi"},
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStartConversationMessageIDChecks(t *testing.T) {
	gw := gateway.New(store.NewMemory())
	carol := models.Identity{Email: "carol@example.com", Name: "Carol"}
	_, err := gw.CreateNewConversation(context.Background(), carol, "dave@example.com", "Dave", models.Message{ID: "m1", Content: models.TextContent{Text: "secret"}})
	require.NoError(t, err)
	router := setupChatRouter(NewChatHandler(gw, nil))

	w := doJSON(t, router, http.MethodPost, "/conversations", gin.H{
		"recipient_email": "bob@example.com",
		"recipient_name":  "Bob Jones",
		"message":         gin.H{"id": "m1", "type": "text", "content": "hi"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodPost, "/conversations", gin.H{
		"recipient_email": "bob@example.com",
		"recipient_name":  "Bob Jones",
		"message":         gin.H{"id": "m.2", "type": "text", "content": "hi"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	msgs, err := gw.GetAllMessagesForConversation(context.Background(), "conversation-m1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.TextContent{Text: "secret"}, msgs[0].Content)
}
