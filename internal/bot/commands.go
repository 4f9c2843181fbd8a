package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/errs"
	"github.com/psds-microservice/citizen-desk/internal/export"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/service"
	"github.com/psds-microservice/citizen-desk/internal/session"
	"github.com/psds-microservice/citizen-desk/internal/transport"
)

const (
	mineLimit    = 10
	activeLimit  = 20
	snippetRunes = 80
)

func (b *Bot) onCommand(ctx context.Context, r *request) {
	switch r.in.Command {
	case "start":
		b.reply(ctx, r, textWelcome, mainKeyboard(r.actor.Staff))
	case "help":
		b.help(ctx, r)
	case "new":
		b.onMenu(ctx, r, buttonCreate)
	case "my":
		b.listMine(ctx, r)
	case "cancel":
		b.sessions.Cancel(r.id())
		b.reply(ctx, r, textCanceled, mainKeyboard(r.actor.Staff))
	case "admin":
		b.admin(ctx, r)
	case "stop":
		if _, err := b.dialogs.Stop(ctx, r.id()); err != nil {
			b.fail(ctx, r, err)
		}
	case "export":
		b.staffOnly(ctx, r, b.cmdExport)
	case "cleanup":
		b.staffOnly(ctx, r, b.cmdCleanup)
	case "bulkclose":
		b.staffOnly(ctx, r, b.bulkClose)
	case "broadcast":
		b.staffOnly(ctx, r, b.cmdBroadcast)
	case "stats":
		b.staffOnly(ctx, r, b.stats)
	case "active":
		b.staffOnly(ctx, r, b.listActive)
	case "open":
		b.staffOnly(ctx, r, b.cmdOpen)
	case "reply":
		b.staffOnly(ctx, r, b.cmdReply)
	case "dialog":
		b.staffOnly(ctx, r, b.cmdDialog)
	case "dept":
		b.staffOnly(ctx, r, b.cmdDept)
	default:
		b.reply(ctx, r, textFallback, mainKeyboard(r.actor.Staff))
	}
}

func (b *Bot) admin(ctx context.Context, r *request) {
	if len(r.in.Args) != 1 {
		b.reply(ctx, r, textAdminUsage, nil)
		return
	}
	err := b.svc.Authorize(ctx, r.id(), r.in.Args[0])
	switch {
	case errors.Is(err, errs.ErrForbidden):
		b.reply(ctx, r, textAdminDenied, nil)
	case err != nil:
		b.fail(ctx, r, err)
	default:
		b.reply(ctx, r, textAdminGranted, mainKeyboard(true))
	}
}

func (b *Bot) listMine(ctx context.Context, r *request) {
	tickets, err := b.svc.ListMine(ctx, r.id(), mineLimit)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	if len(tickets) == 0 {
		b.reply(ctx, r, textNoTickets, mainKeyboard(r.actor.Staff))
		return
	}
	lines := make([]string, 0, len(tickets))
	for i := range tickets {
		t := &tickets[i]
		lines = append(lines, fmt.Sprintf("%s — %s — %s\n%s",
			t.TicketID, t.Status.Label(), t.CreatedAt.UTC().Format("2006-01-02 15:04"), snippet(t.Text)))
	}
	b.reply(ctx, r, strings.Join(lines, "\n\n"), mainKeyboard(r.actor.Staff))
}

func snippet(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= snippetRunes {
		return string(runes)
	}
	return string(runes[:snippetRunes]) + "..."
}

func (b *Bot) listActive(ctx context.Context, r *request) {
	tickets, err := b.svc.ListActive(ctx, r.actor, activeLimit)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	if len(tickets) == 0 {
		b.reply(ctx, r, textNoActive, nil)
		return
	}
	var sb strings.Builder
	sb.WriteString("Активные заявки:\n")
	for i := range tickets {
		t := &tickets[i]
		urgent := ""
		if t.Urgent {
			urgent = " ⚠️"
		}
		fmt.Fprintf(&sb, "\n%s — %s — %s%s", t.TicketID, t.Status.Label(), t.Category.Label(), urgent)
	}
	b.reply(ctx, r, sb.String(), openButtons(tickets))
}

func (b *Bot) stats(ctx context.Context, r *request) {
	c, err := b.svc.Stats(ctx, r.actor)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	text := fmt.Sprintf("Всего заявок: %d\nНовых: %d\nВ обработке: %d\nЗавершено: %d\nОтклонено: %d\nАктивных: %d",
		c.Total,
		c.ByStatus[model.TicketStatusNew],
		c.ByStatus[model.TicketStatusInProgress],
		c.ByStatus[model.TicketStatusDone],
		c.ByStatus[model.TicketStatusDeclined],
		c.Active())
	b.reply(ctx, r, text, nil)
}

func (b *Bot) cmdOpen(ctx context.Context, r *request) {
	if len(r.in.Args) == 0 {
		b.prompt(session.AwaitingTicketToOpen{}, textOpenPrompt)(ctx, r)
		return
	}
	if len(r.in.Args) != 1 {
		b.reply(ctx, r, textOpenUsage, nil)
		return
	}
	b.showCard(ctx, r, strings.ToUpper(r.in.Args[0]), r.in.ChatID)
}

// showCard sends the ticket card with its action buttons, then any
// attachment and geo tag.
func (b *Bot) showCard(ctx context.Context, r *request, ticketID string, chatID int64) {
	t, err := b.svc.Get(ctx, r.actor, ticketID)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	b.send(ctx, chatID, service.TicketCard(t), cardKeyboard(t))
	if t.MediaRef != "" {
		if err := b.sender.SendMedia(ctx, chatID, t.MediaRef, "Вложение к заявке "+t.TicketID, nil); err != nil {
			r.log.Warn("send ticket media", zap.String("ticket_id", t.TicketID), zap.Error(err))
		}
	}
	if t.HasLocation() {
		loc := transport.Location{Latitude: *t.Latitude, Longitude: *t.Longitude}
		if err := b.sender.SendLocation(ctx, chatID, loc); err != nil {
			r.log.Warn("send ticket location", zap.String("ticket_id", t.TicketID), zap.Error(err))
		}
	}
}

func (b *Bot) cmdReply(ctx context.Context, r *request) {
	if len(r.in.Args) == 0 {
		b.reply(ctx, r, textReplyUsage, nil)
		return
	}
	ticketID := strings.ToUpper(r.in.Args[0])
	text := transport.CommandRest(transport.CommandRest(r.in.Text))
	if text == "" {
		b.sessions.SetMode(r.id(), session.AwaitingOneShotReply{TicketID: ticketID})
		b.reply(ctx, r, fmt.Sprintf("Введите ответ по заявке %s. /cancel — отмена.", ticketID), nil)
		return
	}
	b.sendReply(ctx, r, ticketID, text)
}

func (b *Bot) sendReply(ctx context.Context, r *request, ticketID, text string) {
	if _, err := b.svc.Reply(ctx, r.actor, ticketID, text); err != nil {
		b.fail(ctx, r, err)
		return
	}
	b.reply(ctx, r, textReplySent, nil)
}

func (b *Bot) cmdDialog(ctx context.Context, r *request) {
	if len(r.in.Args) != 1 {
		b.reply(ctx, r, textDialogUsage, nil)
		return
	}
	if err := b.startDialog(ctx, r, strings.ToUpper(r.in.Args[0])); err != nil {
		b.fail(ctx, r, err)
	}
}

// startDialog opens a dialog. Both sides are notified by the bridge; a repeat
// by the same operator only gets a reminder.
func (b *Bot) startDialog(ctx context.Context, r *request, ticketID string) error {
	if l, ok := b.dialogs.Index().ByOperator(r.id()); ok && l.TicketID == ticketID {
		b.send(ctx, r.id(), textDialogActive, nil)
		return nil
	}
	_, err := b.dialogs.Start(ctx, r.actor, ticketID)
	return err
}

func (b *Bot) cmdExport(ctx context.Context, r *request) {
	if len(r.in.Args) == 0 {
		b.prompt(session.AwaitingExportParams{}, textExportPrompt)(ctx, r)
		return
	}
	p, err := export.ParseParams(r.in.Args)
	if err != nil {
		b.reply(ctx, r, textExportUsage, nil)
		return
	}
	b.export(ctx, r, p)
}

func (b *Bot) export(ctx context.Context, r *request, p export.Params) {
	tickets, err := b.svc.Export(ctx, r.actor, p.Start, p.End)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	data, err := export.Render(p.Format, tickets)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	doc := transport.Document{Name: export.FileName(p.Format, p.Start, p.End), Content: data}
	caption := fmt.Sprintf("Заявок: %d", len(tickets))
	if err := b.sender.SendDocument(ctx, r.in.ChatID, doc, caption); err != nil {
		r.log.Warn("send export", zap.String("file", doc.Name), zap.Error(err))
		b.reply(ctx, r, textInternalFailure, nil)
	}
}

func (b *Bot) cmdCleanup(ctx context.Context, r *request) {
	args := r.in.Args
	if len(args) == 0 {
		b.reply(ctx, r, textCleanupUsage, nil)
		return
	}
	switch strings.ToLower(args[0]) {
	case "active":
		b.purge(ctx, r, service.PurgeActive, time.Time{})
	case "all":
		b.purge(ctx, r, service.PurgeAll, time.Time{})
	case "before":
		if len(args) < 2 {
			b.prompt(session.AwaitingCleanupDate{}, textCleanupPrompt)(ctx, r)
			return
		}
		date, err := export.ParseDate(args[1])
		if err != nil {
			b.reply(ctx, r, textBadDate, nil)
			return
		}
		b.purge(ctx, r, service.PurgeBefore, date)
	default:
		b.reply(ctx, r, textCleanupUsage, nil)
	}
}

func (b *Bot) purge(ctx context.Context, r *request, kind service.PurgeKind, before time.Time) {
	n, err := b.svc.Purge(ctx, r.actor, kind, before)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	b.reply(ctx, r, fmt.Sprintf("Удалено заявок: %d", n), nil)
}

func (b *Bot) bulkClose(ctx context.Context, r *request) {
	n, err := b.svc.BulkClose(ctx, r.actor)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	b.reply(ctx, r, fmt.Sprintf("Закрыто заявок: %d", n), nil)
}

func (b *Bot) cmdBroadcast(ctx context.Context, r *request) {
	text := transport.CommandRest(r.in.Text)
	if text == "" {
		b.prompt(session.AwaitingBroadcastText{}, textBroadcastAsk)(ctx, r)
		return
	}
	b.broadcast(ctx, r, text)
}

func (b *Bot) broadcast(ctx context.Context, r *request, text string) {
	delivered, failed, err := b.svc.Broadcast(ctx, r.actor, text)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	b.reply(ctx, r, fmt.Sprintf("Рассылка завершена. Доставлено: %d, не доставлено: %d", delivered, failed), nil)
}

func (b *Bot) cmdDept(ctx context.Context, r *request) {
	args := r.in.Args
	if len(args) == 0 {
		b.reply(ctx, r, textDeptUsage, nil)
		return
	}
	switch strings.ToLower(args[0]) {
	case "list":
		b.listDepartments(ctx, r)
	case "set":
		if len(args) < 3 {
			b.reply(ctx, r, textDeptUsage, nil)
			return
		}
		b.setDepartment(ctx, r, args[1], args[2], strings.Join(args[3:], " "))
	case "del":
		if len(args) != 2 {
			b.reply(ctx, r, textDeptUsage, nil)
			return
		}
		if err := b.svc.DeleteDepartment(ctx, r.actor, args[1]); err != nil {
			b.fail(ctx, r, err)
			return
		}
		b.reply(ctx, r, "Подразделение "+args[1]+" удалено.", nil)
	default:
		b.reply(ctx, r, textDeptUsage, nil)
	}
}

func (b *Bot) listDepartments(ctx context.Context, r *request) {
	depts, err := b.svc.ListDepartments(ctx)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	var sb strings.Builder
	sb.WriteString("Подразделения:")
	for _, d := range depts {
		target := "нет"
		if d.Notifiable() {
			target = strconv.FormatInt(*d.NotificationTarget, 10)
		}
		fmt.Fprintf(&sb, "\n%s — %s — чат: %s", d.Key, d.DisplayName, target)
	}
	b.reply(ctx, r, sb.String(), nil)
}

// setDepartment upserts a department. target "-" clears the chat; an empty
// name keeps the current display name.
func (b *Bot) setDepartment(ctx context.Context, r *request, key, target, name string) {
	d := model.Department{Key: key, DisplayName: strings.TrimSpace(name)}
	if target != "-" {
		id, err := strconv.ParseInt(target, 10, 64)
		if err != nil {
			b.reply(ctx, r, textDeptUsage, nil)
			return
		}
		d.NotificationTarget = &id
	}
	if d.DisplayName == "" {
		d.DisplayName = key
		if cur, err := b.svc.GetDepartment(ctx, key); err == nil {
			d.DisplayName = cur.DisplayName
		}
	}
	saved, err := b.svc.UpsertDepartment(ctx, r.actor, d)
	if err != nil {
		b.fail(ctx, r, err)
		return
	}
	b.reply(ctx, r, fmt.Sprintf("Подразделение %s сохранено: %s", saved.Key, saved.DisplayName), nil)
}
