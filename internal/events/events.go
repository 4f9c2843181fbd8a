// Package events publishes ticket lifecycle events to the configured
// message buses. Publishing is best-effort and never blocks a transition.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
	"github.com/psds-microservice/citizen-desk/pkg/metrics"
)

// Type names an event; it doubles as the routing key / subject suffix.
type Type string

const (
	TicketCreated       Type = "ticket.created"
	TicketStatusChanged Type = "ticket.status_changed"
	TicketAssigned      Type = "ticket.assigned"
	TicketReplied       Type = "ticket.replied"
	TicketBulkClosed    Type = "ticket.bulk_closed"
	TicketPurged        Type = "ticket.purged"
	TicketSnapshot      Type = "ticket.snapshot"
)

type Event struct {
	ID             string             `json:"id"`
	Type           Type               `json:"type"`
	TicketID       string             `json:"ticket_id"`
	OccurredAt     time.Time          `json:"occurred_at"`
	ActorID        *int64             `json:"actor_id,omitempty"`
	PreviousStatus model.TicketStatus `json:"previous_status,omitempty"`
	Departments    []string           `json:"departments,omitempty"`
	Ticket         *model.Ticket      `json:"ticket,omitempty"`
}

// New builds an event with a fresh id.
func New(typ Type, ticket *model.Ticket) Event {
	e := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Ticket:     ticket,
	}
	if ticket != nil {
		e.TicketID = ticket.TicketID
	}
	return e
}

// Backend is one message bus.
type Backend interface {
	Name() string
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Bus fans events out to every backend.
type Bus struct {
	backends []Backend
	timeout  time.Duration
	log      *logger.Logger
	wg       sync.WaitGroup
}

func NewBus(log *logger.Logger, backends ...Backend) *Bus {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bus{backends: backends, timeout: 5 * time.Second, log: log.Named("events")}
}

// Enabled reports whether any backend is configured.
func (b *Bus) Enabled() bool {
	return b != nil && len(b.backends) > 0
}

// Emit publishes e on a background goroutine.
func (b *Bus) Emit(e Event) {
	if !b.Enabled() {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		_ = b.Publish(ctx, e)
	}()
}

// Publish sends e to every backend and returns the first error.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if !b.Enabled() {
		return nil
	}
	var first error
	for _, be := range b.backends {
		err := be.Publish(ctx, e)
		metrics.RecordPublish(be.Name(), err)
		if err != nil {
			b.log.Warn("publish ticket event",
				zap.String("backend", be.Name()),
				zap.String("type", string(e.Type)),
				zap.String("ticket_id", e.TicketID),
				zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Close waits for in-flight publishes and closes every backend.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.wg.Wait()
	for _, be := range b.backends {
		if err := be.Close(); err != nil {
			b.log.Warn("close event backend", zap.String("backend", be.Name()), zap.Error(err))
		}
	}
}
