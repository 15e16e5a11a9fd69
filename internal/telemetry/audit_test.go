package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/logging"
	"chat-sync/internal/observability"
)

type capturePublisher struct {
	routingKey string
	event      any
	err        error
}

func (p *capturePublisher) Publish(ctx context.Context, routingKey string, event any) error {
	p.routingKey = routingKey
	p.event = event
	return p.err
}

func TestEmitBuildsEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit.chat", "chat-sync", "test", logging.Nop())
	emitter.now = func() time.Time { return time.Date(2024, 5, 8, 16, 5, 6, 0, time.UTC) }

	email := "a@x.com"
	emitter.Emit(context.Background(), "INFO", "conversation created", "req-1", &email)

	assert.Equal(t, "audit.chat", pub.routingKey)
	envelope, ok := pub.event.(AuditEnvelope)
	require.True(t, ok)
	assert.Equal(t, "audit_log", envelope.EventType)
	assert.Equal(t, "2024-05-08T16:05:06Z", envelope.OccurredAt)
	assert.Equal(t, "chat-sync", envelope.Service)
	assert.Equal(t, "req-1", envelope.RequestID)
	assert.Equal(t, &email, envelope.UserEmail)
	assert.Equal(t, AuditPayload{Level: "INFO", Text: "conversation created"}, envelope.Payload)
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	pub := &capturePublisher{err: errors.New("down")}
	emitter := NewAuditEmitter(pub, "audit.chat", "chat-sync", "test", nil)

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "ERROR", "boom", "", nil)
	})
}

func TestEmitOnNilEmitter(t *testing.T) {
	var emitter *AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "INFO", "x", "", nil)
	})
}

func TestEmitFallsBackToContextRequestID(t *testing.T) {
	pub := &capturePublisher{}
	emitter := NewAuditEmitter(pub, "audit.chat", "chat-sync", "test", nil)

	emitter.Emit(observability.WithRequestID(context.Background(), "ctx-req"), "INFO", "x", "", nil)

	envelope := pub.event.(AuditEnvelope)
	assert.Equal(t, "ctx-req", envelope.RequestID)
	assert.Empty(t, envelope.TraceID)
}
