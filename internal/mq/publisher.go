package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// EventEnvelope обертка события для внешних потребителей.
type EventEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Publisher пробрасывает события шины в долговременную очередь RabbitMQ.
// Сбой публикации логируется и не блокирует движок бронирования.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	logger  *zerolog.Logger
}

func NewPublisher(cfg config.AMQPConfig, logger *zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &Publisher{conn: conn, channel: ch, queue: cfg.Queue, logger: logger}, nil
}

// Bind подписывает паблишер на все типы событий шины.
func (p *Publisher) Bind(bus *events.EventBus) {
	eventTypes := []string{
		events.EventBookingCreated,
		events.EventBookingCancelled,
		events.EventWaitlistJoined,
		events.EventWaitlistNotified,
		events.EventWaitlistExpired,
	}
	for _, eventType := range eventTypes {
		bus.Subscribe(eventType, p.handleEvent)
	}
}

func (p *Publisher) handleEvent(event *events.Event) error {
	envelope := EventEnvelope{
		Type:      event.Type,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", event.Type).Msg("failed to marshal event envelope")
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.CreatedAt,
			Body:         body,
		})
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", event.Type).Msg("failed to publish event to queue")
		return err
	}

	return nil
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
