// Package events publishes chat lifecycle events to a RabbitMQ topic
// exchange so downstream consumers (notifications, analytics) can react
// without coupling to the API process.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Routing keys for the chat.events exchange.
const (
	KeyInviteCreated = "chat.invite.created"
	KeyChatShared    = "chat.shared"
	KeyTurnFinalized = "chat.turn.finalized"
)

// Envelope wraps every published event.
type Envelope struct {
	ID         string          `json:"id"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher emits chat events. Implementations must be safe for concurrent
// use.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
	Close() error
}

type rmqPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

// NewRabbitPublisher connects to RabbitMQ and declares the topic exchange.
func NewRabbitPublisher(url, exchange string) (Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &rmqPublisher{
		conn:     conn,
		exchange: exchange,
	}, nil
}

func (r *rmqPublisher) Publish(ctx context.Context, key string, payload any) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	env := Envelope{
		ID:         uuid.NewString(),
		Key:        key,
		OccurredAt: time.Now(),
		Payload:    raw,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	err = ch.PublishWithContext(
		ctx, r.exchange, key, false, false,
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    env.ID,
			Timestamp:    env.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (r *rmqPublisher) Close() error {
	return r.conn.Close()
}

// noopPublisher is used when no broker is configured; publishes become log
// lines so local development does not need RabbitMQ running.
type noopPublisher struct{}

// NewNoopPublisher returns a publisher that drops events.
func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) Publish(_ context.Context, key string, _ any) error {
	log.Printf("events: no broker configured, dropping %s", key)
	return nil
}

func (noopPublisher) Close() error { return nil }
