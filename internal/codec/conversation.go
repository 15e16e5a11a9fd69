package codec

import (
	"encoding/json"
	"fmt"

	"chat-sync/internal/models"
)

type latestMessageIn struct {
	Date           *string `json:"date" validate:"required"`
	MessageContent *string `json:"message_content"`
	Message        *string `json:"message"`
	IsRead         *bool   `json:"is_read" validate:"required"`
}

type conversationIn struct {
	ID             *string          `json:"id" validate:"required"`
	OtherUserEmail *string          `json:"other_user_email" validate:"required"`
	Name           *string          `json:"name" validate:"required"`
	LatestMessage  *latestMessageIn `json:"latest_message" validate:"required"`
}

// DecodeConversation decodes one conversation summary. Summaries written
// before the "message_content" key was introduced carry "message" instead.
func DecodeConversation(raw json.RawMessage) (models.ConversationSummary, error) {
	var in conversationIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return models.ConversationSummary{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if err := validate.Struct(in); err != nil {
		return models.ConversationSummary{}, fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	content := in.LatestMessage.MessageContent
	if content == nil {
		content = in.LatestMessage.Message
	}
	if content == nil {
		return models.ConversationSummary{}, fmt.Errorf("%w: latest_message.message_content", ErrMissingField)
	}
	return models.ConversationSummary{
		ID:             *in.ID,
		OtherUserEmail: *in.OtherUserEmail,
		Name:           *in.Name,
		LatestMessage: models.LatestMessage{
			Date:           *in.LatestMessage.Date,
			MessageContent: *content,
			IsRead:         *in.LatestMessage.IsRead,
		},
	}, nil
}

// DecodeConversations decodes a conversation list, skipping invalid entries.
func DecodeConversations(raws []json.RawMessage) ([]models.ConversationSummary, []RecordError) {
	out := make([]models.ConversationSummary, 0, len(raws))
	var failed []RecordError
	for i, raw := range raws {
		c, err := DecodeConversation(raw)
		if err != nil {
			failed = append(failed, RecordError{Index: i, Err: err})
			continue
		}
		out = append(out, c)
	}
	return out, failed
}

// LatestMessageOf builds the conversation preview of a stored message record.
func LatestMessageOf(rec models.MessageRecord) models.LatestMessage {
	return models.LatestMessage{
		Date:           rec.Date,
		MessageContent: rec.Content,
		IsRead:         rec.IsRead,
	}
}
