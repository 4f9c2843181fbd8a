package mq

import (
	"context"
	"encoding/json"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/events"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
)

// RabbitPublisher publishes ticket events to a RabbitMQ topic exchange,
// using the event type as routing key.
type RabbitPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	log      *logger.Logger
}

// NewRabbitPublisher creates a publisher connecting to RabbitMQ.
func NewRabbitPublisher(url, exchange string, log *logger.Logger) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

func (p *RabbitPublisher) Name() string { return "rabbitmq" }

// Publish serializes the event to JSON and sends it to the exchange.
func (p *RabbitPublisher) Publish(ctx context.Context, e events.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, string(e.Type), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.OccurredAt,
		Type:         string(e.Type),
		Body:         body,
	})
}

// Close terminates the connection.
func (p *RabbitPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.log.Warn("close channel", zap.Error(err))
	}
	return p.conn.Close()
}
