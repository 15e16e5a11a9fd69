package models

import "time"

// Kind tags the payload of a message.
type Kind string

const (
	KindText           Kind = "text"
	KindAttributedText Kind = "attributed_text"
	KindPhoto          Kind = "photo"
	KindVideo          Kind = "video"
	KindLocation       Kind = "location"
	KindEmoji          Kind = "emoji"
	KindAudio          Kind = "audio"
	KindContact        Kind = "contact"
	KindLinkPreview    Kind = "link_preview"
	KindCustom         Kind = "custom"
)

// Content is the kind-specific payload of a message.
type Content interface {
	Kind() Kind
}

// TextContent is a plain text message.
type TextContent struct {
	Text string
}

func (TextContent) Kind() Kind { return KindText }

// PhotoContent references an uploaded photo by its absolute URL.
type PhotoContent struct {
	URL string
}

func (PhotoContent) Kind() Kind { return KindPhoto }

// VideoContent references an uploaded video by its absolute URL.
type VideoContent struct {
	URL string
}

func (VideoContent) Kind() Kind { return KindVideo }

// LocationContent is a shared map coordinate.
type LocationContent struct {
	Longitude float64
	Latitude  float64
}

func (LocationContent) Kind() Kind { return KindLocation }

// UnsupportedContent stands in for kinds that are not persisted with a
// payload (attributed text, emoji, audio, contact, link preview, custom).
type UnsupportedContent struct {
	Type Kind
}

func (c UnsupportedContent) Kind() Kind { return c.Type }

// Message is a typed chat message.
type Message struct {
	ID            string
	Content       Content
	SentDate      time.Time
	SenderEmail   string
	IsRead        bool
	RecipientName string
}

// MessageRecord is the stored shape of a message inside a conversation log.
type MessageRecord struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	Date        string `json:"date"`
	SenderEmail string `json:"sender_email"`
	IsRead      bool   `json:"is_read"`
	Name        string `json:"name"`
}

// MessagesEvent is pushed to websocket subscribers of a conversation.
type MessagesEvent struct {
	Type           string          `json:"type"`
	ConversationID string          `json:"conversation_id"`
	Messages       []MessageRecord `json:"messages"`
}
