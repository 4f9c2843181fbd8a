package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/psds-microservice/citizen-desk/internal/export"
	"github.com/psds-microservice/citizen-desk/internal/service"
	"github.com/psds-microservice/citizen-desk/internal/session"
)

// onWizard handles input while the creation wizard is open. Attachments are
// stashed in the draft; the first text completes the ticket. Text sent while
// the category menu is still open is categorized automatically.
func (b *Bot) onWizard(ctx context.Context, r *request) {
	if isCancelWord(r.in.Text) {
		b.sessions.Cancel(r.id())
		b.reply(ctx, r, textWizardCanceled, mainKeyboard(r.actor.Staff))
		return
	}
	if btn := exactButton(r.in.Text); btn != buttonNone {
		b.sessions.Cancel(r.id())
		b.onMenu(ctx, r, btn)
		return
	}
	if r.in.MediaRef != "" {
		b.sessions.AttachMedia(r.id(), r.in.MediaRef)
	}
	if loc := r.in.Location; loc != nil {
		b.sessions.AttachLocation(r.id(), session.Location{Latitude: loc.Latitude, Longitude: loc.Longitude})
	}
	text := r.text()
	if text == "" {
		b.reply(ctx, r, textAttachment, nil)
		return
	}
	b.createTicket(ctx, r, text, b.sessions.TakeDraft(r.id()))
}

func (b *Bot) createTicket(ctx context.Context, r *request, text string, d session.Draft) {
	in := service.NewTicket{
		AuthorID: r.id(),
		Text:     text,
		MediaRef: d.MediaRef,
		Category: d.Category,
	}
	if d.Location != nil {
		lat, lon := d.Location.Latitude, d.Location.Longitude
		in.Latitude, in.Longitude = &lat, &lon
	}
	t, route, err := b.svc.Create(ctx, in)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	msg := fmt.Sprintf("Заявка принята, номер %s\nКатегория: %s", t.TicketID, t.Category.Label())
	if route.Urgent {
		msg += "\n\n" + textUrgentHint
	}
	b.reply(ctx, r, msg, mainKeyboard(r.actor.Staff))
}

// onPrompt consumes the answer to a pending single-field prompt. Unparsable
// answers keep the prompt armed.
func (b *Bot) onPrompt(ctx context.Context, r *request, mode session.Mode) {
	if isCancelWord(r.in.Text) {
		b.sessions.Cancel(r.id())
		b.reply(ctx, r, textCanceled, mainKeyboard(r.actor.Staff))
		return
	}
	if btn := exactButton(r.in.Text); btn != buttonNone {
		b.sessions.CompletePrompt(r.id())
		b.onMenu(ctx, r, btn)
		return
	}
	text := r.text()
	if text == "" {
		b.reply(ctx, r, textNeedText, nil)
		return
	}
	switch m := mode.(type) {
	case session.AwaitingTicketToOpen:
		b.sessions.CompletePrompt(r.id())
		b.showCard(ctx, r, strings.ToUpper(text), r.in.ChatID)
	case session.AwaitingExportParams:
		p, err := export.ParseParams(strings.Fields(text))
		if err != nil {
			b.reply(ctx, r, textExportUsage+"\n/cancel — отмена.", nil)
			return
		}
		b.sessions.CompletePrompt(r.id())
		b.export(ctx, r, p)
	case session.AwaitingBroadcastText:
		b.sessions.CompletePrompt(r.id())
		b.broadcast(ctx, r, text)
	case session.AwaitingCleanupDate:
		date, err := export.ParseDate(text)
		if err != nil {
			b.reply(ctx, r, textBadDate, nil)
			return
		}
		b.sessions.CompletePrompt(r.id())
		b.purge(ctx, r, service.PurgeBefore, date)
	case session.AwaitingOneShotReply:
		b.sessions.CompletePrompt(r.id())
		b.sendReply(ctx, r, m.TicketID, text)
	}
}
