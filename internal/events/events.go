// Package events publishes session lifecycle transitions to an AMQP fanout
// exchange. Publishing is fire-and-forget: nothing in the broker consumes
// these events or depends on delivery, so a publish failure is logged and
// swallowed rather than propagated to the caller (registry.EnsureRunning).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/kestrelstream/broker/internal/metrics"
	"github.com/kestrelstream/broker/pkg/models"
)

// Publisher satisfies registry.EventSink.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
}

// New dials amqpURL, declares a durable fanout exchange named exchange, and
// returns a Publisher ready to accept events.
func New(amqpURL, exchange string, logger zerolog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{conn: conn, channel: channel, exchange: exchange, logger: logger}, nil
}

// Close closes the underlying AMQP channel and connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Publish sends event to the exchange. Errors are logged, not returned,
// matching registry.EventSink's no-error signature.
func (p *Publisher) Publish(ctx context.Context, event models.SessionEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("type", event.Type).Msg("failed to marshal session event")
		metrics.RecordEventPublished(event.Type, false)
		return
	}

	publishCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(publishCtx,
		p.exchange,
		"", // routing key, ignored by fanout
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Timestamp:   event.Timestamp,
		},
	)
	if err != nil {
		p.logger.Error().Err(err).Str("type", event.Type).Msg("failed to publish session event")
		metrics.RecordEventPublished(event.Type, false)
		return
	}

	metrics.RecordEventPublished(event.Type, true)
}
