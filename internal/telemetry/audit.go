// Package telemetry emits audit entries for actions taken on behalf of a
// user.
package telemetry

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"chat-sync/internal/observability"
)

const (
	auditEventType     = "audit_log"
	auditSchemaVersion = 1
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// AuditEnvelope is the message body published for each audit entry.
type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserEmail     *string      `json:"user_email,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

func (AuditEnvelope) Type() string { return auditEventType }

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// AuditEmitter publishes audit entries under one routing key. A nil
// emitter drops everything.
type AuditEmitter struct {
	publisher  Publisher
	routingKey string
	origin     struct{ service, environment string }
	logger     log.Logger
	now        func() time.Time
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger log.Logger) *AuditEmitter {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	e := &AuditEmitter{publisher: publisher, routingKey: routingKey, logger: logger, now: time.Now}
	e.origin.service, e.origin.environment = service, environment
	return e
}

// Emit publishes one entry. Publish failures are logged and otherwise
// ignored so that auditing never fails a request.
func (e *AuditEmitter) Emit(ctx context.Context, lvl, text, requestID string, userEmail *string) {
	if e == nil || e.publisher == nil {
		return
	}
	if requestID == "" {
		requestID = observability.RequestIDFromContext(ctx)
	}

	err := e.publisher.Publish(ctx, e.routingKey, AuditEnvelope{
		SchemaVersion: auditSchemaVersion,
		EventType:     auditEventType,
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.origin.service,
		Environment:   e.origin.environment,
		RequestID:     requestID,
		TraceID:       observability.TraceIDFromContext(ctx),
		UserEmail:     userEmail,
		Payload:       AuditPayload{Level: lvl, Text: text},
	})
	if err != nil {
		level.Warn(e.logger).Log("msg", "audit publish failed", "routing_key", e.routingKey, "request_id", requestID, "err", err)
	}
}
