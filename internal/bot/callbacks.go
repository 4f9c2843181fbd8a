package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/callback"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/routing"
	"github.com/psds-microservice/citizen-desk/internal/service"
	"github.com/psds-microservice/citizen-desk/internal/session"
	"github.com/psds-microservice/citizen-desk/internal/transport"
)

// onCallback handles an inline button press and always answers it so the
// client stops its spinner.
func (b *Bot) onCallback(ctx context.Context, r *request) {
	cb := r.in.Callback
	action, args := callback.Decode(cb.Data)
	answer := ""
	switch action {
	case callback.Category:
		answer = b.cbCategory(ctx, r, args)
	case callback.Cancel:
		b.sessions.Cancel(r.id())
		b.edit(ctx, r, textWizardCanceled, nil)
	default:
		if !r.actor.Staff {
			answer = textForbidden
			break
		}
		if len(args) == 0 {
			answer = textStaleMenu
			break
		}
		answer = b.staffCallback(ctx, r, action, args)
	}
	if err := b.sender.AnswerCallback(ctx, cb.ID, answer); err != nil {
		r.log.Debug("answer callback", zap.Error(err))
	}
}

func (b *Bot) staffCallback(ctx context.Context, r *request, action callback.Action, args []string) string {
	ticketID := args[0]
	switch action {
	case callback.Open:
		b.showCard(ctx, r, ticketID, r.in.ChatID)
	case callback.SetStatus:
		if len(args) != 2 {
			return textStaleMenu
		}
		t, err := b.svc.ChangeStatus(ctx, r.actor, ticketID, model.TicketStatus(args[1]), "")
		if err != nil {
			return b.errorText(r, err)
		}
		done := "Статус изменён на: " + t.Status.Label()
		b.edit(ctx, r, service.TicketCard(t)+"\n\n"+done, cardKeyboard(t))
		return done
	case callback.AssignMenu:
		depts, err := b.svc.ListDepartments(ctx)
		if err != nil {
			return b.errorText(r, err)
		}
		b.send(ctx, r.in.ChatID, fmt.Sprintf(textChooseDept, ticketID), departmentKeyboard(ticketID, depts))
	case callback.Assign:
		if len(args) != 2 {
			return textStaleMenu
		}
		if _, err := b.svc.AssignDepartment(ctx, r.actor, ticketID, args[1]); err != nil {
			return b.errorText(r, err)
		}
		name := args[1]
		if d, err := b.svc.GetDepartment(ctx, args[1]); err == nil {
			name = d.DisplayName
		}
		b.edit(ctx, r, fmt.Sprintf("Заявка %s передана в подразделение «%s».", ticketID, name), nil)
		return "Передано: " + name
	case callback.Reply:
		b.sessions.SetMode(r.id(), session.AwaitingOneShotReply{TicketID: ticketID})
		b.send(ctx, r.id(), fmt.Sprintf("Введите ответ по заявке %s. /cancel — отмена.", ticketID), nil)
	case callback.Dialog:
		if err := b.startDialog(ctx, r, ticketID); err != nil {
			return b.errorText(r, err)
		}
	case callback.StopDialog:
		if _, err := b.dialogs.StopTicket(ctx, r.id(), ticketID); err != nil {
			return b.errorText(r, err)
		}
	default:
		return textStaleMenu
	}
	return ""
}

// cbCategory records the category picked from the wizard menu.
func (b *Bot) cbCategory(ctx context.Context, r *request, args []string) string {
	if _, ok := b.sessions.Current(r.id()).Mode.(session.AwaitingCategory); !ok || len(args) != 1 {
		return textStaleMenu
	}
	c := model.Category(args[0])
	if args[0] == categoryNone {
		c = model.CategoryNone
	}
	if !c.Valid() {
		return textStaleMenu
	}
	b.sessions.ChooseCategory(r.id(), c)
	text := "Категория: " + c.Label() + "\n\n" + textEnterText
	if routing.Urgent(c) {
		text += "\n\n" + textUrgentHint
	}
	b.edit(ctx, r, text, nil)
	return ""
}

// edit rewrites the message carrying the pressed button.
func (b *Bot) edit(ctx context.Context, r *request, text string, kb *transport.Keyboard) {
	cb := r.in.Callback
	if cb == nil || cb.MessageID == 0 {
		b.reply(ctx, r, text, kb)
		return
	}
	if err := b.sender.EditMessage(ctx, r.in.ChatID, cb.MessageID, text, kb); err != nil {
		r.log.Warn("edit message", zap.Error(err))
	}
}
