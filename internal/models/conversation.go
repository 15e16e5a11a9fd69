package models

// LatestMessage is the denormalized preview of the newest message of a conversation.
type LatestMessage struct {
	Date           string `json:"date"`
	MessageContent string `json:"message_content"`
	IsRead         bool   `json:"is_read"`
}

// ConversationSummary is one entry of a user's conversation list. Each
// participant holds an independent copy.
type ConversationSummary struct {
	ID             string        `json:"id"`
	OtherUserEmail string        `json:"other_user_email"`
	Name           string        `json:"name"`
	LatestMessage  LatestMessage `json:"latest_message"`
}

// ConversationsEvent is pushed to websocket subscribers of a conversation list.
type ConversationsEvent struct {
	Type          string                `json:"type"`
	Conversations []ConversationSummary `json:"conversations"`
}
