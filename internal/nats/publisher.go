// Package nats publishes ticket events to a NATS JetStream stream.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/events"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
)

// StreamName is the JetStream stream holding ticket events.
const StreamName = "CITIZEN_DESK_TICKETS"

type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	prefix string
}

// Connect dials NATS and makes sure the ticket stream exists.
func Connect(ctx context.Context, url, prefix string, log *logger.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("citizen-desk"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	p := &Publisher{conn: nc, js: js, prefix: prefix}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}
	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{p.prefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Citizen desk ticket lifecycle events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Subject returns "<prefix>.<event type>.<ticket id>".
func Subject(prefix string, e events.Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, e.Type, e.TicketID)
}

func (p *Publisher) Name() string { return "nats" }

func (p *Publisher) Publish(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, Subject(p.prefix, e), data, jetstream.WithMsgID(e.ID)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p.conn != nil {
		return p.conn.Drain()
	}
	return nil
}
