package gateway

import "github.com/google/uuid"

// Routing keys of domain events.
const (
	RoutingConversationCreated = "chat.conversation.created"
	RoutingMessageSent         = "chat.message.sent"
	RoutingConversationDeleted = "chat.conversation.deleted"
	RoutingUserRegistered      = "chat.user.registered"
)

// Event is the payload of every domain event. Emails are sanitized.
type Event struct {
	SchemaVersion  int    `json:"schema_version"`
	EventType      string `json:"event_type"`
	OccurredAt     string `json:"occurred_at"`
	Actor          string `json:"actor"`
	Counterpart    string `json:"counterpart,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	MessageType    string `json:"message_type,omitempty"`
}

func (e Event) Type() string { return e.EventType }

func newMessageID() string {
	return uuid.NewString()
}
