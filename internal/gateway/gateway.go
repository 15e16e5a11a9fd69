// Package gateway turns chat operations into read-modify-write sequences
// against the hierarchical store.
//
// Each user owns a conversation summary list at "{safeEmail}/conversations"
// and each conversation owns a message log at "{conversationId}/messages".
// Summaries are duplicated in both participants' lists, so every message
// write fans out to three paths: the log first, then the two summaries.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/codec"
	"chat-sync/internal/observability"
	"chat-sync/internal/store"
)

var (
	ErrFetchFailed          = errors.New("fetch failed")
	ErrConversationNotFound = fmt.Errorf("conversation not found: %w", ErrFetchFailed)
	ErrConversationExists   = errors.New("conversation already exists")
	ErrConversationIDTaken  = errors.New("conversation id already in use")
	ErrNoCurrentUser        = errors.New("no current user")
	ErrPartialWrite         = errors.New("partial write")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrObserveUnsupported   = errors.New("store does not support observation")
)

// errNoChange aborts a store update that would rewrite the same value.
var errNoChange = errors.New("no change")

// Publisher receives domain events after successful writes.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Gateway implements the chat operations on top of a Store. It holds no
// per-request state and is safe for concurrent use.
type Gateway struct {
	store     store.Store
	observer  store.Observer
	logger    log.Logger
	publisher Publisher
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

type Option func(*Gateway)

func WithLogger(logger log.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithPublisher(p Publisher) Option {
	return func(g *Gateway) { g.publisher = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) { g.tracer = t }
}

// WithClock replaces time.Now for message dates and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithIDGenerator replaces the generator used for messages sent without an id.
func WithIDGenerator(newID func() string) Option {
	return func(g *Gateway) { g.newID = newID }
}

// New builds a Gateway over s. When s also implements store.Observer the
// Observe operations are available.
func New(s store.Store, opts ...Option) *Gateway {
	g := &Gateway{
		store:  s,
		logger: log.NewNopLogger(),
		tracer: otel.Tracer("chat-sync/gateway"),
		now:    time.Now,
		newID:  newMessageID,
	}
	if o, ok := s.(store.Observer); ok {
		g.observer = o
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// begin opens a span for op and returns a func that records the outcome.
func (g *Gateway) begin(ctx context.Context, op string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := g.tracer.Start(ctx, "gateway."+op)
	return ctx, func(err error) {
		result := resultOf(err)
		if err != nil && result == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		observability.ObserveGatewayOp(op, result, time.Since(start))
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConversationExists):
		return "exists"
	case errors.Is(err, ErrFetchFailed):
		return "not_found"
	case errors.Is(err, ErrNoCurrentUser), errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrConversationIDTaken):
		return "rejected"
	default:
		return "error"
	}
}

// reportDropped logs and counts records left out of a decoded list.
func (g *Gateway) reportDropped(kind, path string, failed []codec.RecordError) {
	if len(failed) == 0 {
		return
	}
	for _, f := range failed {
		level.Warn(g.logger).Log("msg", "dropping undecodable record", "kind", kind, "path", path, "index", f.Index, "err", f.Err)
	}
	observability.AddDroppedRecords(kind, len(failed))
}

func (g *Gateway) publish(ctx context.Context, routingKey string, event Event) {
	if g.publisher == nil {
		return
	}
	event.SchemaVersion = 1
	event.OccurredAt = g.now().UTC().Format(time.RFC3339Nano)
	if err := g.publisher.Publish(context.WithoutCancel(ctx), routingKey, event); err != nil {
		observability.IncAMQPPublishError()
		level.Warn(g.logger).Log("msg", "event publish failed", "routing_key", routingKey, "err", err)
	}
}

// update runs store.Update and treats errNoChange as success.
func (g *Gateway) update(ctx context.Context, path string, fn store.UpdateFunc) error {
	err := g.store.Update(ctx, path, fn)
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

// listOf returns the elements of a stored list. An absent value is an empty list.
func listOf(snap store.Snapshot) ([]any, error) {
	if !snap.Exists() {
		return nil, nil
	}
	items, ok := snap.Value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, snap.Path, store.ErrShape)
	}
	return items, nil
}

// indexByID finds the first list element whose "id" field equals id.
func indexByID(items []any, id string) int {
	for i, item := range items {
		if m, ok := item.(map[string]any); ok && m["id"] == id {
			return i
		}
	}
	return -1
}
