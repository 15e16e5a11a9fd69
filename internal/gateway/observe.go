package gateway

import (
	"context"

	"github.com/go-kit/log/level"

	"chat-sync/internal/keys"
	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

// ObserveConversations streams the decoded conversation list of email,
// first as it is now and then after every change. The channel closes
// when ctx ends.
func (g *Gateway) ObserveConversations(ctx context.Context, email string) (<-chan []models.ConversationSummary, error) {
	if email == "" {
		return nil, ErrNoCurrentUser
	}
	snaps, err := g.observe(ctx, keys.ConversationsPath(email))
	if err != nil {
		return nil, err
	}
	return stream(ctx, snaps, func(snap store.Snapshot) ([]models.ConversationSummary, error) {
		if !snap.Exists() {
			return []models.ConversationSummary{}, nil
		}
		return g.decodeConversations(snap)
	}, g.warnFunc("conversations"))
}

// ObserveMessages streams the decoded message log of conversationID.
func (g *Gateway) ObserveMessages(ctx context.Context, conversationID string) (<-chan []models.Message, error) {
	if conversationID == "" {
		return nil, ErrInvalidArgument
	}
	snaps, err := g.observe(ctx, keys.MessagesPath(conversationID))
	if err != nil {
		return nil, err
	}
	return stream(ctx, snaps, func(snap store.Snapshot) ([]models.Message, error) {
		if !snap.Exists() {
			return []models.Message{}, nil
		}
		return g.decodeMessages(snap)
	}, g.warnFunc("messages"))
}

func (g *Gateway) observe(ctx context.Context, path string) (<-chan store.Snapshot, error) {
	if g.observer == nil {
		return nil, ErrObserveUnsupported
	}
	return g.observer.Observe(ctx, path)
}

func (g *Gateway) warnFunc(kind string) func(path string, err error) {
	return func(path string, err error) {
		level.Warn(g.logger).Log("msg", "skipping unreadable snapshot", "kind", kind, "path", path, "err", err)
	}
}

// stream decodes each snapshot and forwards the result until ctx ends or
// snaps closes. Snapshots that fail to decode are skipped.
func stream[T any](ctx context.Context, snaps <-chan store.Snapshot, decode func(store.Snapshot) (T, error), warn func(string, error)) (<-chan T, error) {
	out := make(chan T, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				v, err := decode(snap)
				if err != nil {
					warn(snap.Path, err)
					continue
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
