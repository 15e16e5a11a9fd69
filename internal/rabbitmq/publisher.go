// Package rabbitmq publishes JSON events to a topic exchange. When the
// broker is not configured or unreachable it degrades to a publisher that
// only logs.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	amqp "github.com/rabbitmq/amqp091-go"

	"chat-sync/internal/observability"
)

// Publisher sends an event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

type eventTyped interface {
	Type() string
}

// NewPublisher connects to amqpURL and declares exchange as a durable
// topic exchange. Any failure yields a logging-only publisher.
func NewPublisher(amqpURL, exchange string, logger log.Logger) Publisher {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if amqpURL == "" {
		return fallback(logger, "empty amqp url")
	}

	p, err := dial(amqpURL, exchange, logger)
	if err != nil {
		return fallback(logger, err.Error())
	}
	level.Info(logger).Log("msg", "rabbitmq connected", "exchange", exchange)
	return p
}

func fallback(logger log.Logger, reason string) Publisher {
	level.Warn(logger).Log("msg", "rabbitmq disabled, events are logged only", "reason", reason)
	return noopPublisher{reason: reason, logger: logger}
}

type amqpPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   log.Logger
}

func dial(amqpURL, exchange string, logger log.Logger) (*amqpPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	const (
		durable    = true
		autoDelete = false
		internal   = false
		noWait     = false
	)
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, durable, autoDelete, internal, noWait, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &amqpPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}
	go p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	return p, nil
}

// watch logs an unexpected connection loss. Later publishes fail and are
// counted by the callers.
func (p *amqpPublisher) watch(closed <-chan *amqp.Error) {
	if err, ok := <-closed; ok && err != nil {
		level.Error(p.logger).Log("msg", "rabbitmq connection lost", "err", err)
	}
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %T: %w", event, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         typeOf(event),
		Headers:      headerTable(observability.HeadersFromContext(ctx)),
		Body:         body,
	}

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		level.Error(p.logger).Log("msg", "rabbitmq publish failed", "routing_key", routingKey, "err", err)
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.ch.Close()
	return p.conn.Close()
}

type noopPublisher struct {
	reason string
	logger log.Logger
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	level.Debug(p.logger).Log(
		"msg", "event not published",
		"routing_key", routingKey,
		"event_type", typeOf(event),
		"request_id", observability.RequestIDFromContext(ctx),
	)
	return nil
}

func (noopPublisher) Close() error { return nil }

// PublisherMode is "amqp" or "noop".
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	}
	return "unknown"
}

// PublisherNoopReason explains why p only logs.
func PublisherNoopReason(p Publisher) string {
	if n, ok := p.(noopPublisher); ok {
		return n.reason
	}
	return ""
}

func typeOf(event any) string {
	if typed, ok := event.(eventTyped); ok {
		return typed.Type()
	}
	return ""
}

func headerTable(headers map[string]string) amqp.Table {
	table := make(amqp.Table, len(headers))
	for k, v := range headers {
		table[k] = v
	}
	return table
}
