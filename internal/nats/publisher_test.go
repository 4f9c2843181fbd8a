package nats

import (
	"testing"

	"github.com/psds-microservice/citizen-desk/internal/events"
)

func TestSubject(t *testing.T) {
	e := events.Event{Type: events.TicketStatusChanged, TicketID: "T20250101000000001"}
	got := Subject("citizen_desk.tickets", e)
	want := "citizen_desk.tickets.ticket.status_changed.T20250101000000001"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
