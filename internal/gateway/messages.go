package gateway

import (
	"context"
	"fmt"

	"chat-sync/internal/codec"
	"chat-sync/internal/keys"
	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

// SendMessage appends msg to an existing conversation and refreshes both
// participants' summaries. A message whose id is already in the log is
// not appended again, so a retried send only repeats the summary writes.
func (g *Gateway) SendMessage(ctx context.Context, me models.Identity, conversationID, otherEmail, otherName string, msg models.Message) (err error) {
	ctx, done := g.begin(ctx, "send_message")
	defer func() { done(err) }()

	if me.Email == "" {
		return ErrNoCurrentUser
	}
	if conversationID == "" || otherEmail == "" {
		return fmt.Errorf("%w: conversation id and recipient are required", ErrInvalidArgument)
	}
	if !keys.ValidID(conversationID) {
		return fmt.Errorf("%w: conversation id %q", ErrInvalidArgument, conversationID)
	}

	rec, err := g.encode(me, otherName, msg)
	if err != nil {
		return err
	}
	if err := g.appendMessage(ctx, conversationID, rec); err != nil {
		return err
	}

	mine := me.SafeEmail()
	other := keys.SafeEmail(otherEmail)
	latest := codec.LatestMessageOf(rec)
	if err := g.upsertSummary(ctx, mine, models.ConversationSummary{
		ID:             conversationID,
		OtherUserEmail: other,
		Name:           otherName,
		LatestMessage:  latest,
	}); err != nil {
		return fmt.Errorf("%w: sender summary: %w", ErrPartialWrite, err)
	}
	if err := g.upsertSummary(ctx, other, models.ConversationSummary{
		ID:             conversationID,
		OtherUserEmail: mine,
		Name:           me.Name,
		LatestMessage:  latest,
	}); err != nil {
		return fmt.Errorf("%w: recipient summary: %w", ErrPartialWrite, err)
	}

	g.publish(ctx, RoutingMessageSent, Event{
		EventType:      "message.sent",
		Actor:          mine,
		Counterpart:    other,
		ConversationID: conversationID,
		MessageID:      rec.ID,
		MessageType:    rec.Type,
	})
	return nil
}

// GetAllMessagesForConversation returns the decoded message log. Records
// with an unknown type or unreadable fields are left out.
func (g *Gateway) GetAllMessagesForConversation(ctx context.Context, conversationID string) (messages []models.Message, err error) {
	ctx, done := g.begin(ctx, "get_messages")
	defer func() { done(err) }()

	if !keys.ValidID(conversationID) {
		return nil, fmt.Errorf("%w: conversation id %q", ErrInvalidArgument, conversationID)
	}
	path := keys.MessagesPath(conversationID)
	snap, err := g.store.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !snap.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	return g.decodeMessages(snap)
}

func (g *Gateway) decodeMessages(snap store.Snapshot) ([]models.Message, error) {
	raws, err := snap.List()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	out, failed := codec.DecodeMessages(raws)
	g.reportDropped("message", snap.Path, failed)
	return out, nil
}

// encode fills the sender, recipient name, id and date of msg and returns
// its stored record.
func (g *Gateway) encode(me models.Identity, otherName string, msg models.Message) (models.MessageRecord, error) {
	if msg.ID == "" {
		msg.ID = g.newID()
	}
	if !keys.ValidID(msg.ID) {
		return models.MessageRecord{}, fmt.Errorf("%w: message id %q", ErrInvalidArgument, msg.ID)
	}
	if msg.SentDate.IsZero() {
		msg.SentDate = g.now()
	}
	msg.SenderEmail = me.SafeEmail()
	if msg.RecipientName == "" {
		msg.RecipientName = otherName
	}
	rec, err := codec.EncodeMessage(msg)
	if err != nil {
		return models.MessageRecord{}, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return rec, nil
}

// appendMessage adds rec to the existing log of conversationID. An absent
// log is ErrConversationNotFound.
func (g *Gateway) appendMessage(ctx context.Context, conversationID string, rec models.MessageRecord) error {
	return g.update(ctx, keys.MessagesPath(conversationID), func(cur store.Snapshot) (any, error) {
		if !cur.Exists() {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		items, err := listOf(cur)
		if err != nil {
			return nil, err
		}
		if indexByID(items, rec.ID) >= 0 {
			return nil, errNoChange
		}
		return append(items, rec), nil
	})
}

// openLog creates the log of conversationID with rec as its first record.
// An existing log is accepted only when it was opened by the same record
// from the same sender, which is what a retried creation finds.
func (g *Gateway) openLog(ctx context.Context, conversationID string, rec models.MessageRecord) error {
	return g.update(ctx, keys.MessagesPath(conversationID), func(cur store.Snapshot) (any, error) {
		items, err := listOf(cur)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return []any{rec}, nil
		}
		if sameOpening(items[0], rec) {
			return nil, errNoChange
		}
		return nil, fmt.Errorf("%w: %s", ErrConversationIDTaken, conversationID)
	})
}

// sameOpening compares a stored record with rec, ignoring the date that a
// retry stamps anew.
func sameOpening(item any, rec models.MessageRecord) bool {
	m, ok := item.(map[string]any)
	if !ok {
		return false
	}
	return m["id"] == rec.ID &&
		m["sender_email"] == rec.SenderEmail &&
		m["type"] == rec.Type &&
		m["content"] == rec.Content &&
		m["name"] == rec.Name
}
