package service

import (
	"fmt"
	"strings"

	"github.com/psds-microservice/citizen-desk/internal/callback"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/notify"
	"github.com/psds-microservice/citizen-desk/internal/routing"
	"github.com/psds-microservice/citizen-desk/internal/transport"
)

const timeLayout = "2006-01-02 15:04 UTC"

// TicketCard renders the ticket summary shown to staff and departments.
func TicketCard(t *model.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Заявка %s\n", t.TicketID)
	fmt.Fprintf(&b, "Статус: %s\n", t.Status.Label())
	fmt.Fprintf(&b, "Категория: %s\n", t.Category.Label())
	if t.Urgent {
		b.WriteString("⚠️ СРОЧНО\n")
	}
	if t.Department != "" {
		fmt.Fprintf(&b, "Подразделение: %s\n", t.Department)
	}
	fmt.Fprintf(&b, "От: %d\n", t.AuthorID)
	fmt.Fprintf(&b, "Дата: %s\n", t.CreatedAt.UTC().Format(timeLayout))
	if t.HasLocation() {
		fmt.Fprintf(&b, "Координаты: %.6f, %.6f\n", *t.Latitude, *t.Longitude)
	}
	if t.AdminComment != "" {
		fmt.Fprintf(&b, "Комментарий: %s\n", t.AdminComment)
	}
	text := t.Text
	if text == "" {
		text = "<пусто>"
	}
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}

func openKeyboard(ticketID string) *transport.Keyboard {
	return &transport.Keyboard{Inline: [][]transport.Button{{
		{Text: "Открыть", Data: callback.Encode(callback.Open, ticketID)},
	}}}
}

func location(t *model.Ticket) *transport.Location {
	if !t.HasLocation() {
		return nil
	}
	return &transport.Location{Latitude: *t.Latitude, Longitude: *t.Longitude}
}

func newTicketMessage(t *model.Ticket, route routing.Route) notify.Message {
	header := "🆕 Новая заявка"
	if route.Urgent {
		header = "🚨 СРОЧНАЯ заявка"
	}
	text := header + "\n\n" + TicketCard(t)
	if len(route.Departments) > 1 {
		text += "\n\nНаправлена: " + strings.Join(route.Departments, ", ")
	}
	return notify.Message{
		Text:     text,
		MediaRef: t.MediaRef,
		Location: location(t),
		Keyboard: openKeyboard(t.TicketID),
	}
}

func assignedDepartmentMessage(t *model.Ticket) notify.Message {
	return notify.Message{
		Text:     "📌 Заявка передана вашему подразделению\n\n" + TicketCard(t),
		MediaRef: t.MediaRef,
		Location: location(t),
		Keyboard: openKeyboard(t.TicketID),
	}
}

func statusChangedText(t *model.Ticket, prev model.TicketStatus) string {
	text := fmt.Sprintf("Статус вашей заявки %s изменён: %s → %s", t.TicketID, prev.Label(), t.Status.Label())
	if t.AdminComment != "" {
		text += "\nКомментарий: " + t.AdminComment
	}
	return text
}

func assignedText(t *model.Ticket, d *model.Department) string {
	return fmt.Sprintf("Ваша заявка %s передана в подразделение «%s».", t.TicketID, d.DisplayName)
}

func replyText(t *model.Ticket, text string) string {
	return fmt.Sprintf("💬 Ответ по заявке %s:\n\n%s", t.TicketID, strings.TrimSpace(text))
}

func bulkClosedText(t *model.Ticket) string {
	return fmt.Sprintf("Ваша заявка %s закрыта (статус: %s).", t.TicketID, model.TicketStatusDone.Label())
}
