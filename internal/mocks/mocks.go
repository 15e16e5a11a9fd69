package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/media"
	"chat-sync/internal/models"
)

type GatewayMock struct {
	mock.Mock
}

func (m *GatewayMock) UserExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *GatewayMock) InsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *GatewayMock) GetAllUsers(ctx context.Context) ([]models.DirectoryEntry, error) {
	args := m.Called(ctx)
	var users []models.DirectoryEntry
	if val := args.Get(0); val != nil {
		users = val.([]models.DirectoryEntry)
	}
	return users, args.Error(1)
}

func (m *GatewayMock) SearchUsers(ctx context.Context, query, selfEmail string) ([]models.DirectoryEntry, error) {
	args := m.Called(ctx, query, selfEmail)
	var users []models.DirectoryEntry
	if val := args.Get(0); val != nil {
		users = val.([]models.DirectoryEntry)
	}
	return users, args.Error(1)
}

func (m *GatewayMock) CreateNewConversation(ctx context.Context, me models.Identity, otherEmail, otherName string, first models.Message) (string, error) {
	args := m.Called(ctx, me, otherEmail, otherName, first)
	return args.String(0), args.Error(1)
}

func (m *GatewayMock) SendMessage(ctx context.Context, me models.Identity, conversationID, otherEmail, otherName string, msg models.Message) error {
	args := m.Called(ctx, me, conversationID, otherEmail, otherName, msg)
	return args.Error(0)
}

func (m *GatewayMock) GetAllConversations(ctx context.Context, email string) ([]models.ConversationSummary, error) {
	args := m.Called(ctx, email)
	var list []models.ConversationSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.ConversationSummary)
	}
	return list, args.Error(1)
}

func (m *GatewayMock) GetAllMessagesForConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *GatewayMock) DeleteConversation(ctx context.Context, me models.Identity, conversationID string) error {
	args := m.Called(ctx, me, conversationID)
	return args.Error(0)
}

func (m *GatewayMock) ConversationExists(ctx context.Context, me models.Identity, targetEmail string) (string, error) {
	args := m.Called(ctx, me, targetEmail)
	return args.String(0), args.Error(1)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	args := m.Called(ctx, path, data, contentType)
	return args.String(0), args.Error(1)
}

func (m *UploaderMock) DownloadURL(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

var _ media.Uploader = (*UploaderMock)(nil)
