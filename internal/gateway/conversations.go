package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-kit/log/level"

	"chat-sync/internal/codec"
	"chat-sync/internal/keys"
	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

// CreateNewConversation starts a conversation between me and otherEmail
// with first as its opening message and returns the conversation id.
//
// The message log is written first, then the sender's summary, then the
// recipient's. Retrying after an ErrPartialWrite completes the fan-out
// without duplicating entries: the log accepts the same opening record
// again, and when me already has a summary for otherEmail the recipient's
// summary is added if it is missing before the existing id is returned
// with ErrConversationExists.
//
// A log that already exists under the derived id but was opened by a
// different record yields ErrConversationIDTaken.
func (g *Gateway) CreateNewConversation(ctx context.Context, me models.Identity, otherEmail, otherName string, first models.Message) (conversationID string, err error) {
	ctx, done := g.begin(ctx, "create_conversation")
	defer func() { done(err) }()

	if me.Email == "" {
		return "", ErrNoCurrentUser
	}
	if strings.TrimSpace(otherEmail) == "" {
		return "", fmt.Errorf("%w: empty recipient email", ErrInvalidArgument)
	}
	mine := me.SafeEmail()
	other := keys.SafeEmail(otherEmail)
	if mine == other {
		return "", fmt.Errorf("%w: cannot start a conversation with yourself", ErrInvalidArgument)
	}

	existing, err := g.summaries(ctx, mine)
	if err != nil {
		return "", err
	}
	for _, s := range existing {
		if s.OtherUserEmail != other {
			continue
		}
		if err := g.ensureSummary(ctx, other, models.ConversationSummary{
			ID:             s.ID,
			OtherUserEmail: mine,
			Name:           me.Name,
			LatestMessage:  s.LatestMessage,
		}); err != nil {
			return s.ID, fmt.Errorf("%w: recipient summary: %w", ErrPartialWrite, err)
		}
		return s.ID, ErrConversationExists
	}

	rec, err := g.encode(me, otherName, first)
	if err != nil {
		return "", err
	}
	conversationID = keys.ConversationID(rec.ID)

	if err := g.openLog(ctx, conversationID, rec); err != nil {
		return "", fmt.Errorf("write message log: %w", err)
	}

	latest := codec.LatestMessageOf(rec)
	if err := g.upsertSummary(ctx, mine, models.ConversationSummary{
		ID:             conversationID,
		OtherUserEmail: other,
		Name:           otherName,
		LatestMessage:  latest,
	}); err != nil {
		return conversationID, fmt.Errorf("%w: sender summary: %w", ErrPartialWrite, err)
	}
	if err := g.upsertSummary(ctx, other, models.ConversationSummary{
		ID:             conversationID,
		OtherUserEmail: mine,
		Name:           me.Name,
		LatestMessage:  latest,
	}); err != nil {
		return conversationID, fmt.Errorf("%w: recipient summary: %w", ErrPartialWrite, err)
	}

	g.publish(ctx, RoutingConversationCreated, Event{
		EventType:      "conversation.created",
		Actor:          mine,
		Counterpart:    other,
		ConversationID: conversationID,
		MessageID:      rec.ID,
		MessageType:    rec.Type,
	})
	return conversationID, nil
}

// UpdateUserLatestMessage upserts the summary of conversationID in the
// list of ownerEmail. A matching summary gets its latest message replaced
// in place; otherwise a new summary is appended, creating the list if
// needed.
func (g *Gateway) UpdateUserLatestMessage(ctx context.Context, ownerEmail, counterpartEmail string, latest models.LatestMessage, counterpartName, conversationID string) (err error) {
	ctx, done := g.begin(ctx, "update_latest_message")
	defer func() { done(err) }()

	if ownerEmail == "" {
		return ErrNoCurrentUser
	}
	if conversationID == "" {
		return fmt.Errorf("%w: empty conversation id", ErrInvalidArgument)
	}
	return g.upsertSummary(ctx, keys.SafeEmail(ownerEmail), models.ConversationSummary{
		ID:             conversationID,
		OtherUserEmail: keys.SafeEmail(counterpartEmail),
		Name:           counterpartName,
		LatestMessage:  latest,
	})
}

// GetAllConversations returns the conversation list of email. Summaries
// that fail to decode are left out.
func (g *Gateway) GetAllConversations(ctx context.Context, email string) (conversations []models.ConversationSummary, err error) {
	ctx, done := g.begin(ctx, "get_all_conversations")
	defer func() { done(err) }()

	if email == "" {
		return nil, ErrNoCurrentUser
	}
	path := keys.ConversationsPath(email)
	snap, err := g.store.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return g.decodeConversations(snap)
}

// DeleteConversation removes the summary of conversationID from the
// caller's list. The message log stays in place because the counterpart's
// summary still points at it.
func (g *Gateway) DeleteConversation(ctx context.Context, me models.Identity, conversationID string) (err error) {
	ctx, done := g.begin(ctx, "delete_conversation")
	defer func() { done(err) }()

	if me.Email == "" {
		return ErrNoCurrentUser
	}
	var counterpart string
	err = g.store.Update(ctx, keys.ConversationsPath(me.Email), func(cur store.Snapshot) (any, error) {
		items, err := listOf(cur)
		if err != nil {
			return nil, err
		}
		i := indexByID(items, conversationID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		if m, ok := items[i].(map[string]any); ok {
			counterpart, _ = m["other_user_email"].(string)
		}
		items = append(items[:i], items[i+1:]...)
		if len(items) == 0 {
			return nil, nil
		}
		return items, nil
	})
	if err != nil {
		return err
	}

	g.publish(ctx, RoutingConversationDeleted, Event{
		EventType:      "conversation.deleted",
		Actor:          me.SafeEmail(),
		Counterpart:    counterpart,
		ConversationID: conversationID,
	})
	return nil
}

// ConversationExists looks in targetEmail's list for a conversation with
// me and returns its id.
func (g *Gateway) ConversationExists(ctx context.Context, me models.Identity, targetEmail string) (conversationID string, err error) {
	ctx, done := g.begin(ctx, "conversation_exists")
	defer func() { done(err) }()

	if me.Email == "" {
		return "", ErrNoCurrentUser
	}
	summaries, err := g.summaries(ctx, keys.SafeEmail(targetEmail))
	if err != nil {
		return "", err
	}
	mine := me.SafeEmail()
	for _, s := range summaries {
		if s.OtherUserEmail == mine {
			return s.ID, nil
		}
	}
	return "", ErrConversationNotFound
}

// summaries reads a conversation list, treating an absent list as empty.
func (g *Gateway) summaries(ctx context.Context, safeEmail string) ([]models.ConversationSummary, error) {
	path := keys.ConversationsPath(safeEmail)
	snap, err := g.store.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !snap.Exists() {
		return nil, nil
	}
	return g.decodeConversations(snap)
}

func (g *Gateway) decodeConversations(snap store.Snapshot) ([]models.ConversationSummary, error) {
	raws, err := snap.List()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	out, failed := codec.DecodeConversations(raws)
	g.reportDropped("conversation", snap.Path, failed)
	return out, nil
}

// upsertSummary replaces the latest message of the summary with s.ID in
// the list of owner, or appends s when there is none.
func (g *Gateway) upsertSummary(ctx context.Context, owner string, s models.ConversationSummary) error {
	return g.store.Update(ctx, keys.ConversationsPath(owner), func(cur store.Snapshot) (any, error) {
		items, err := listOf(cur)
		if err != nil {
			return nil, err
		}
		if i := indexByID(items, s.ID); i >= 0 {
			m := items[i].(map[string]any)
			m["latest_message"] = s.LatestMessage
			return items, nil
		}
		level.Debug(g.logger).Log("msg", "adding conversation summary", "owner", owner, "conversation", s.ID)
		return append(items, s), nil
	})
}

// ensureSummary appends s to the list of owner unless a summary with the
// same id is already there.
func (g *Gateway) ensureSummary(ctx context.Context, owner string, s models.ConversationSummary) error {
	return g.update(ctx, keys.ConversationsPath(owner), func(cur store.Snapshot) (any, error) {
		items, err := listOf(cur)
		if err != nil {
			return nil, err
		}
		if indexByID(items, s.ID) >= 0 {
			return nil, errNoChange
		}
		level.Info(g.logger).Log("msg", "restoring missing conversation summary", "owner", owner, "conversation", s.ID)
		return append(items, s), nil
	})
}
