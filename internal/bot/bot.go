// Package bot turns inbound chat events into ticket lifecycle operations:
// the citizen creation wizard, staff commands and prompts, inline buttons
// and live dialogs.
package bot

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/dialog"
	"github.com/psds-microservice/citizen-desk/internal/errs"
	"github.com/psds-microservice/citizen-desk/internal/model"
	"github.com/psds-microservice/citizen-desk/internal/service"
	"github.com/psds-microservice/citizen-desk/internal/session"
	"github.com/psds-microservice/citizen-desk/internal/transport"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
	"github.com/psds-microservice/citizen-desk/pkg/metrics"
)

type Deps struct {
	Service  *service.TicketService
	Dialogs  *dialog.Bridge
	Sessions *session.Manager
	Sender   transport.Sender
	Logger   *logger.Logger
}

// Bot is a transport.Handler.
type Bot struct {
	svc      *service.TicketService
	dialogs  *dialog.Bridge
	sessions *session.Manager
	sender   transport.Sender
	log      *logger.Logger
	locks    *keyedLock
}

func New(d Deps) *Bot {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	return &Bot{
		svc:      d.Service,
		dialogs:  d.Dialogs,
		sessions: d.Sessions,
		sender:   d.Sender,
		log:      d.Logger.Named("bot"),
		locks:    newKeyedLock(),
	}
}

// request is one inbound event together with its resolved initiator.
type request struct {
	in    transport.Inbound
	actor service.Actor
	log   *logger.Logger
}

func (r *request) id() int64 { return r.in.ParticipantID }

// text returns the message text, falling back to the media caption.
func (r *request) text() string {
	if t := strings.TrimSpace(r.in.Text); t != "" {
		return t
	}
	return strings.TrimSpace(r.in.Caption)
}

// Handle processes one inbound event. Events of one participant are handled
// strictly one at a time.
func (b *Bot) Handle(ctx context.Context, in transport.Inbound) {
	if in.ParticipantID == 0 {
		return
	}
	unlock := b.locks.Lock(in.ParticipantID)
	defer unlock()

	log := b.log.ForParticipant(in.ParticipantID)
	actor, err := b.svc.Touch(ctx, model.Participant{
		ID:          in.ParticipantID,
		Username:    in.Username,
		DisplayName: in.DisplayName,
	})
	if err != nil {
		log.Warn("touch participant", zap.Error(err))
	}
	handler := b.dispatch(ctx, &request{in: in, actor: actor, log: log})
	metrics.InboundEventsTotal.WithLabelValues(handler).Inc()
}

// dispatch routes the event and returns the name of the handler that took it.
// An active dialog wins over a pending prompt, which wins over the wizard,
// which wins over menu buttons. Commands are always honoured.
func (b *Bot) dispatch(ctx context.Context, r *request) string {
	if r.in.Callback != nil {
		b.onCallback(ctx, r)
		return "callback"
	}
	if r.in.ChatKind != transport.ChatPrivate {
		return "ignored"
	}
	if r.in.Command != "" {
		b.onCommand(ctx, r)
		return "command"
	}

	st := b.sessions.Current(r.id())
	switch {
	case isDialog(st.Mode):
		b.forward(ctx, r)
		return "dialog"
	case session.IsPrompt(st.Mode):
		b.onPrompt(ctx, r, st.Mode)
		return "prompt"
	case session.IsWizard(st.Mode):
		b.onWizard(ctx, r)
		return "wizard"
	}
	if b.onMenu(ctx, r, detectButton(r.in.Text)) {
		return "menu"
	}
	if r.in.MediaRef != "" || r.in.Location != nil {
		b.sessions.StartWizard(r.id())
		b.onWizard(ctx, r)
		return "wizard"
	}
	b.reply(ctx, r, textFallback, mainKeyboard(r.actor.Staff))
	return "help"
}

func isDialog(m session.Mode) bool {
	_, ok := m.(session.InDialog)
	return ok
}

func (b *Bot) forward(ctx context.Context, r *request) {
	msg := dialog.Message{Text: r.text(), MediaRef: r.in.MediaRef, Location: r.in.Location}
	handled, err := b.dialogs.Forward(ctx, r.id(), msg)
	if !handled {
		// The dialog ended between the lookup and the forward.
		b.reply(ctx, r, textNoDialog, mainKeyboard(r.actor.Staff))
		return
	}
	if err != nil {
		r.log.Warn("dialog forward", zap.Error(err))
		b.reply(ctx, r, textUndelivered, nil)
	}
}

// onMenu runs a main keyboard action and reports whether one matched.
func (b *Bot) onMenu(ctx context.Context, r *request, btn button) bool {
	switch btn {
	case buttonCreate:
		b.sessions.StartWizard(r.id())
		b.reply(ctx, r, textChooseCategory, categoryKeyboard())
	case buttonMine:
		b.listMine(ctx, r)
	case buttonHelp:
		b.help(ctx, r)
	case buttonActive:
		b.staffOnly(ctx, r, b.listActive)
	case buttonStats:
		b.staffOnly(ctx, r, b.stats)
	case buttonOpen:
		b.staffOnly(ctx, r, b.prompt(session.AwaitingTicketToOpen{}, textOpenPrompt))
	case buttonExport:
		b.staffOnly(ctx, r, b.prompt(session.AwaitingExportParams{}, textExportPrompt))
	case buttonBroadcast:
		b.staffOnly(ctx, r, b.prompt(session.AwaitingBroadcastText{}, textBroadcastAsk))
	default:
		return false
	}
	return true
}

func (b *Bot) help(ctx context.Context, r *request) {
	text := textHelp
	if r.actor.Staff {
		text += textStaffHelp
	}
	b.reply(ctx, r, text, mainKeyboard(r.actor.Staff))
}

// prompt returns an action that arms a single-field prompt.
func (b *Bot) prompt(mode session.Mode, question string) func(context.Context, *request) {
	return func(ctx context.Context, r *request) {
		b.sessions.SetMode(r.id(), mode)
		b.reply(ctx, r, question, nil)
	}
}

func (b *Bot) staffOnly(ctx context.Context, r *request, fn func(context.Context, *request)) {
	if !r.actor.Staff {
		b.reply(ctx, r, textForbidden, nil)
		return
	}
	fn(ctx, r)
}

func (b *Bot) reply(ctx context.Context, r *request, text string, kb *transport.Keyboard) {
	b.send(ctx, r.in.ChatID, text, kb)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, kb *transport.Keyboard) {
	if _, err := b.sender.SendMessage(ctx, chatID, text, kb); err != nil {
		b.log.Warn("send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) fail(ctx context.Context, r *request, err error) {
	b.reply(ctx, r, b.errorText(r, err), nil)
}

// errorText maps a domain error to what the participant is told. Store
// failures are logged and reported generically.
func (b *Bot) errorText(r *request, err error) string {
	switch {
	case errors.Is(err, errs.ErrForbidden):
		return textForbidden
	case errors.Is(err, errs.ErrNotDialogOwner):
		return textNotDialogOwner
	case errors.Is(err, errs.ErrTicketNotFound):
		return textTicketNotFound
	case errors.Is(err, errs.ErrDepartmentNotFound):
		return textDeptNotFound
	case errors.Is(err, errs.ErrInvalidArgument):
		return textInvalid
	case errors.Is(err, errs.ErrTerminalState):
		return textTerminal
	case errors.Is(err, errs.ErrInvalidTransition):
		return textBadTransition
	case errors.Is(err, errs.ErrDialogBusy):
		return textDialogBusy
	case errors.Is(err, errs.ErrNoDialog):
		return textNoDialog
	}
	r.log.Error("operation failed", zap.Error(err))
	return textInternalFailure
}
